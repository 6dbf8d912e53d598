// Package iosvc posts Go callables to a native I/O service.
//
// Producers call Post from any goroutine; one consumer drives the service
// with Run, which executes every task on its own goroutine until none is
// left:
//
//	svc, err := iosvc.New(lib, contexts)
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	svc.Post(func(args ...any) { fmt.Println(args...) }, "hello")
//	n, err := svc.Run()
package iosvc
