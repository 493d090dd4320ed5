package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/talkvm/core/internal/allocator"
	"github.com/talkvm/core/internal/cli"
	"github.com/talkvm/core/internal/objmem"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		showHelp    = flag.Bool("help", false, "show help information")
		jsonOutput  = flag.Bool("json", false, "output version in JSON format")
		objects     = flag.Int("objects", 10000, "number of synthetic objects to populate the heap with")
		garbage     = flag.Float64("garbage-fraction", 0.3, "fraction of objects left with no surviving root, forming cyclic and acyclic garbage")
		cycles      = flag.Int("cycles", 3, "number of AsyncGC cycles to run")
		compact     = flag.Bool("compact", true, "run a compacting GC cycle after the mark/sweep cycles")
		debugAudit  = flag.Bool("debug-audit", true, "run the reference-count auditor after each cycle and report any mismatch")
		seed        = flag.Int64("seed", 1, "random seed for synthetic graph generation")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Exercises an objmem.Heap against a synthetic object graph: builds a\n")
		fmt.Fprintf(os.Stderr, "mix of rooted objects, acyclic garbage, and reference cycles, then\n")
		fmt.Fprintf(os.Stderr, "runs collection cycles and reports statistics and audit results.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s --objects 50000 --cycles 5\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --compact=false --debug-audit=false\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		cli.PrintVersion("objmem-harness", *jsonOutput)
		os.Exit(0)
	}

	if err := allocator.EnsureInitialized(); err != nil {
		cli.ExitWithError("allocator init: %v", err)
	}

	stack := &rootStack{}

	h, err := objmem.NewHeap(objmem.DefaultConfig(
		objmem.WithDebugAudit(*debugAudit),
	), objmem.Collaborators{
		Stack:     stack,
		Finalizer: objmem.NewQueuedFinalizer(1024),
		Mourner:   objmem.NewQueuedMourner(1024),
		Scheduler: objmem.NewSignalScheduler(),
	})
	if err != nil {
		cli.ExitWithError("NewHeap: %v", err)
	}

	h.AddVMRefs()

	undefinedClass, err := h.NewObject(objmem.VMNil, 0, false)
	if err != nil {
		cli.ExitWithError("allocate root class: %v", err)
	}

	corpse, err := h.NewObject(undefinedClass, 0, false)
	if err != nil {
		cli.ExitWithError("allocate corpse: %v", err)
	}

	h.RegisterCorpse(corpse)

	rng := rand.New(rand.NewSource(*seed))
	populate(h, stack, rng, *objects, *garbage)

	fmt.Printf("populated %d objects (~%.0f%% unrooted)\n", *objects, *garbage*100)

	for i := 0; i < *cycles; i++ {
		if err := h.AsyncGC(0); err != nil {
			cli.ExitWithError("AsyncGC cycle %d: %v", i, err)
		}

		stats := h.Stats()
		fmt.Printf("cycle %d: %+v\n", i, stats)

		if *debugAudit {
			report := h.Audit()
			if len(report.Mismatches) > 0 {
				fmt.Printf("cycle %d: %d refcount mismatch(es)\n", i, len(report.Mismatches))
			}
		}
	}

	if *compact {
		moved, err := h.Compact()
		if err != nil {
			cli.ExitWithError("Compact: %v", err)
		}

		fmt.Printf("compaction moved %d entries\n", moved)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(h.Stats()); err != nil {
		cli.ExitWithError("encode stats: %v", err)
	}
}

// rootStack is a synthetic ActiveStack: a flat slice of OTE indices the
// harness treats as permanently rooted for the run.
type rootStack struct {
	roots []objmem.OTEIndex
}

func (s *rootStack) Walk(visit func(idx objmem.OTEIndex)) {
	for _, r := range s.roots {
		visit(r)
	}
}

// populate builds a synthetic object graph of n single-field pointer
// objects under undefinedClass's shape: a rooted spine (kept reachable via
// stack), acyclic garbage chains, and two-node reference cycles, so that a
// run exercises both the refcounting fast path (acyclic garbage reclaimed
// eagerly through the ZCT) and the tracing fallback (cycles only reclaimed
// by AsyncGC's mark/sweep).
func populate(h *objmem.Heap, stack *rootStack, rng *rand.Rand, n int, garbageFraction float64) {
	class, err := h.NewObject(objmem.VMNil, 0, false)
	if err != nil {
		cli.ExitWithError("allocate object class: %v", err)
	}
	h.SetClassSpec(class, objmem.InstanceSpec{FixedFields: 1, Pointers: true})

	garbageCount := int(float64(n) * garbageFraction)
	rootedCount := n - garbageCount

	roots := make([]objmem.OTEIndex, 0, rootedCount)
	for i := 0; i < rootedCount; i++ {
		idx, err := h.NewObject(class, 1, true)
		if err != nil {
			cli.ExitWithError("allocate rooted object %d: %v", i, err)
		}
		roots = append(roots, idx)
	}

	// Link each rooted object to a random predecessor, so the stack roots
	// a forest rather than n isolated objects.
	for i, idx := range roots {
		if i == 0 {
			continue
		}
		parent := roots[rng.Intn(i)]
		old := h.Fields(parent)[0]
		h.Fields(parent)[0] = objmem.OopRef(idx)
		h.IncRef(idx)
		if !old.IsImmediate() {
			h.DecRef(old.Index())
		}
	}

	stack.roots = roots

	for i := 0; i < garbageCount; i++ {
		if rng.Float64() < 0.5 {
			populateCycle(h, class, rng)
		} else {
			populateChain(h, class, rng)
		}
	}
}

// populateCycle allocates a two-object reference cycle reachable from
// nothing but itself: refcounting alone cannot reclaim it, only a tracing
// AsyncGC cycle can.
func populateCycle(h *objmem.Heap, class objmem.OTEIndex, rng *rand.Rand) {
	a, err := h.NewObject(class, 1, true)
	if err != nil {
		return
	}

	b, err := h.NewObject(class, 1, true)
	if err != nil {
		return
	}

	h.Fields(a)[0] = objmem.OopRef(b)
	h.Fields(b)[0] = objmem.OopRef(a)
	h.IncRef(a)
	h.IncRef(b)
}

// populateChain allocates a short unrooted chain of acyclic garbage: it
// should be reclaimed as soon as it's decref'd into the ZCT, without
// waiting on a tracing cycle at all.
func populateChain(h *objmem.Heap, class objmem.OTEIndex, rng *rand.Rand) {
	length := 1 + rng.Intn(4)

	var prev objmem.OTEIndex = objmem.NoIndex
	for i := 0; i < length; i++ {
		idx, err := h.NewObject(class, 1, true)
		if err != nil {
			return
		}

		if prev != objmem.NoIndex {
			h.Fields(idx)[0] = objmem.OopRef(prev)
			h.IncRef(prev)
		}

		prev = idx
	}

	// Drop the head's only reference, as a mutator overwriting the field
	// that held it would, so the head lands on the ZCT.
	if prev != objmem.NoIndex {
		h.IncRef(prev)
		h.DecRef(prev)
	}
}
