package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// activeMachines returns every machine of a CPU family currently in S0.
// Used by the greedy strategy to decide whether enough capacity is active
// to justify draining one.
func activeMachines(ctx *Context, cpu cluster.CPUType) []cluster.MachineID {
	var out []cluster.MachineID
	for _, id := range ctx.Index.ByCPU(cpu) {
		info, ok := ctx.Fleet.Info(id)
		if ok && info.SState.Running() {
			out = append(out, id)
		}
	}
	return out
}

// leastUtilizedNonEmpty scans an ascending-utilization-sorted machine list
// and returns the first one that is running and hosts at least one task.
func leastUtilizedNonEmpty(ctx *Context, sorted []cluster.MachineID) (cluster.MachineID, bool) {
	for _, id := range sorted {
		info, ok := ctx.Fleet.Info(id)
		if !ok || !info.SState.Running() {
			continue
		}
		if len(vmsWithTasks(ctx, id)) > 0 {
			return id, true
		}
	}
	return 0, false
}

// vmsWithTasks returns every VM on a machine that currently has at least
// one active task.
func vmsWithTasks(ctx *Context, m cluster.MachineID) []*vmtable.VM {
	var out []*vmtable.VM
	for _, vm := range ctx.VMs.OnMachine(m) {
		if len(vm.ActiveTasks) > 0 {
			out = append(out, vm)
		}
	}
	return out
}

// lightestTask finds the smallest-memory-footprint task on a machine,
// across every VM it hosts, along with the VM it is currently attached to.
func lightestTask(ctx *Context, m cluster.MachineID) (registry.TaskInfo, *vmtable.VM, bool) {
	var (
		best   registry.TaskInfo
		bestVM *vmtable.VM
		found  bool
	)
	for _, vm := range ctx.VMs.OnMachine(m) {
		for id := range vm.ActiveTasks {
			info := ctx.Tasks.GetTaskInfo(id)
			if !found || info.RequiredMemory < best.RequiredMemory {
				best, bestVM, found = info, vm, true
			}
		}
	}
	return best, bestVM, found
}

// shutdownIfEmpty tears down every empty VM on a machine and, if that
// leaves the machine with no attached VMs at all, requests S5.
func shutdownIfEmpty(ctx *Context, m cluster.MachineID) {
	remaining := 0
	for _, vm := range ctx.VMs.OnMachine(m) {
		if len(vm.ActiveTasks) == 0 {
			if err := ctx.VMs.Shutdown(vm); err == nil {
				continue
			}
		}
		remaining++
	}
	if remaining == 0 {
		ctx.Fleet.RequestState(m, cluster.S5)
		ctx.Recorder.Record(ctx.Now, "power", "machine drained, requested S5")
	}
}
