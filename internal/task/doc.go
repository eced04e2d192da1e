// Package task implements the cooperative scheduler: task records, a
// fixed-capacity registry and the per-iteration Tick driver.
//
// Everything here runs on one goroutine. Registry, Scheduler and the tasks they
// hold carry no locks; host code that needs to feed data in from another
// goroutine does it through a channel drained by a task callback.
//
// Typical host loop:
//
//	reg := task.NewRegistry(16, clk)
//	sched := task.NewScheduler(reg)
//	_, _ = reg.Add(task.New("blink", 500, blink, &led))
//	_ = sched.Run(ctx, 5*time.Millisecond)
package task
