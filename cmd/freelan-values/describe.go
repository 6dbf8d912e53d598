package main

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	freelan "github.com/wippyai/freelan-binding"
	"github.com/wippyai/freelan-binding/ectx"
	"github.com/wippyai/freelan-binding/iosvc"
	"github.com/wippyai/freelan-binding/memtrace"
	"github.com/wippyai/freelan-binding/native"
	"github.com/wippyai/freelan-binding/value"
)

type partInfo struct {
	typeName  string
	canonical string
}

// description is what the command reports for one input.
type description struct {
	err       error
	input     string
	typeName  string
	canonical string
	parts     []partInfo
	hash      uint64
}

func (d description) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q\n", d.typeName, d.input)
	if d.err != nil {
		fmt.Fprintf(&b, "  error:     %v\n", d.err)
		return b.String()
	}
	fmt.Fprintf(&b, "  canonical: %s\n", d.canonical)
	fmt.Fprintf(&b, "  hash:      %#016x\n", d.hash)
	for _, p := range d.parts {
		fmt.Fprintf(&b, "  part:      %s %s\n", p.typeName, p.canonical)
	}
	return b.String()
}

// describe parses text and releases every native value it created before
// returning.
func describe(reg *value.Registry, typeName, text string) (d description, err error) {
	d = description{input: text, typeName: typeName}
	defer func() { d.err = err }()

	v, err := reg.ParseAny(typeName, text)
	if err != nil {
		return d, err
	}
	defer func() { err = multierr.Append(err, v.Close()) }()

	if d.canonical, err = v.Format(); err != nil {
		return d, err
	}
	if d.hash, err = v.Hash(); err != nil {
		return d, err
	}

	parts, err := value.Parts(v)
	for _, p := range parts {
		s, ferr := p.Format()
		err = multierr.Combine(err, ferr, p.Close())
		d.parts = append(d.parts, partInfo{typeName: p.TypeName(), canonical: s})
	}
	return d, err
}

func setLoggers(l *zap.Logger) {
	freelan.SetLogger(l)
	native.SetLogger(l.Named("native"))
	ectx.SetLogger(l.Named("ectx"))
	value.SetLogger(l.Named("value"))
	memtrace.SetLogger(l.Named("memtrace"))
	iosvc.SetLogger(l.Named("iosvc"))
}
