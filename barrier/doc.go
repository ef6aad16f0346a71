// Package barrier is the participant side of a codetango run.
//
// A participant connects once, records named variables, and waits at named
// barriers. The coordinator releases both participants when both have reached
// the same barrier and reports whether their recorded variables matched.
//
//	b, err := barrier.Connect("program1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//	_ = b.Record("x", 1)
//	ok := b.Wait(ctx, "init")
package barrier
