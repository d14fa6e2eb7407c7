package policy

import (
	"testing"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// TestActiveMachines_OnlyRunning tests that sleeping machines of the same
// CPU family are excluded.
func TestActiveMachines_OnlyRunning(t *testing.T) {
	machines := []cluster.MachineInfo{
		{ID: 0, CPU: cluster.X86, SState: cluster.S0},
		{ID: 1, CPU: cluster.X86, SState: cluster.S5},
		{ID: 2, CPU: cluster.ARM, SState: cluster.S0},
	}
	sim := newFakeSim(machines, nil)
	ctx := testContext(sim, DefaultConfig(Greedy))

	got := activeMachines(ctx, cluster.X86)
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("activeMachines(X86) = %v, want [0]", got)
	}
}

// TestLightestTask_PicksSmallestMemory tests that the smallest task across
// every VM on the machine is returned, not just the first VM's tasks.
func TestLightestTask_PicksSmallestMemory(t *testing.T) {
	sim := newFakeSim(twoX86Machines(), nil)
	ctx := testContext(sim, DefaultConfig(Greedy))

	vm1, _, _ := ctx.FindOrCreateVM(0, registry.LINUX, cluster.X86)
	big := registry.TaskInfo{ID: 1, RequiredCPU: cluster.X86, RequiredOS: registry.LINUX, RequiredMemory: 50}
	if err := ctx.AttachAndAdmit(vm1, 0, big, vmtable.MID); err != nil {
		t.Fatalf("AttachAndAdmit big: %v", err)
	}
	sim.tasks[1] = big
	vm2, _, _ := ctx.FindOrCreateVM(0, registry.WIN, cluster.X86)
	small := registry.TaskInfo{ID: 2, RequiredCPU: cluster.X86, RequiredOS: registry.WIN, RequiredMemory: 10}
	if err := ctx.AttachAndAdmit(vm2, 0, small, vmtable.MID); err != nil {
		t.Fatalf("AttachAndAdmit small: %v", err)
	}
	sim.tasks[2] = small

	got, vm, ok := lightestTask(ctx, 0)
	if !ok || got.ID != 2 || vm.ID != vm2.ID {
		t.Errorf("lightestTask = task %d on vm %d, want task 2 on vm %d", got.ID, vm.ID, vm2.ID)
	}
}

// TestShutdownIfEmpty_RequestsS5WhenNoVMsRemain tests that draining every
// VM off a machine puts it to sleep.
func TestShutdownIfEmpty_RequestsS5WhenNoVMsRemain(t *testing.T) {
	sim := newFakeSim(twoX86Machines(), nil)
	ctx := testContext(sim, DefaultConfig(Greedy))

	vm, _, _ := ctx.FindOrCreateVM(0, registry.LINUX, cluster.X86)
	info, _ := ctx.Fleet.Info(0)
	if err := ctx.VMs.Attach(vm, 0, info); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	shutdownIfEmpty(ctx, 0)

	got, _ := ctx.Fleet.Info(0)
	if got.SState != cluster.S5 {
		t.Errorf("machine SState = %s, want S5 after draining its only (empty) VM", got.SState)
	}
}
