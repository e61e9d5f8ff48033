/*
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ssa

// Liveness computes the live range of every register over the dense
// instruction numbering produced by Layout, and materializes the
// variable table consumed by the register allocator.
//
// Registers clobbered by C calls are modelled as precolored kill
// variables with point-valued segments at every call site.
type Liveness struct{}

func (self Liveness) Apply(cfg *CFG) {
    lay := cfg.Func.Layout
    if lay == nil {
        panic("liveness: instruction layout is required")
    }

    /* serialize the blocks, same order as the layout */
    blocks := cfg.PostOrder().Reversed()

    /* block-local upward-exposed uses and definitions */
    ue := make(map[int]_RegSet, len(blocks))
    df := make(map[int]_RegSet, len(blocks))

    /* scan every block backwards */
    for _, bb := range blocks {
        u := regset()
        d := regset()
        s0 := lay.Start[bb.Id]
        e0 := s0 + len(bb.Ins) + 1

        /* update with definitions and usages */
        for i := e0 - 1; i >= s0; i-- {
            if def, ok := lay.Ins[i].(IrDefinitions); ok {
                for _, r := range def.Definitions() {
                    if !r.IsZero() {
                        u.remove(*r)
                        d.add(*r)
                    }
                }
            }
            if use, ok := lay.Ins[i].(IrUsages); ok {
                for _, r := range use.Usages() {
                    if !r.IsZero() {
                        u.add(*r)
                    }
                }
            }
        }

        /* add to the block tables */
        ue[bb.Id] = u
        df[bb.Id] = d
    }

    /* live-in and live-out sets, iterate until a fixed point is reached */
    livein := make(map[int]_RegSet, len(blocks))
    liveout := make(map[int]_RegSet, len(blocks))

    for next := true; next; {
        next = false

        /* visit in post-order for faster convergence */
        for i := len(blocks) - 1; i >= 0; i-- {
            bb := blocks[i]
            out := regset()

            /* live-out is the union of every successor's live-in */
            for it := bb.Term.Successors(); it.Next(); {
                out.union(livein[it.Block().Id])
            }

            /* live-in{b} = ue{b} ∪ (live-out{b} - def{b}) */
            in := out.clone()
            in.subtract(df[bb.Id])
            in.union(ue[bb.Id])

            /* check for set changes */
            if !in.equals(livein[bb.Id]) {
                next = true
                livein[bb.Id] = in
            }

            /* the out set stabilizes along with the in sets */
            liveout[bb.Id] = out
        }
    }

    /* live range and reference count accumulators */
    ranges := make(map[Reg]*LiveRange)
    weight := make(map[Reg]RegWeight)

    addseg := func(r Reg, s int, e int) {
        if lr, ok := ranges[r]; ok {
            lr.add(s, e)
        } else {
            lr = new(LiveRange)
            lr.add(s, e)
            ranges[r] = lr
        }
    }

    markref := func(r Reg) {
        weight[r] = weight[r].Add(1)
    }

    /* build the segments, block by block, backwards */
    for _, bb := range blocks {
        s0 := lay.Start[bb.Id]
        e0 := s0 + len(bb.Ins) + 1
        live := make(map[Reg]int, len(liveout[bb.Id]))

        /* everything in the live-out set survives past the terminator */
        for r := range liveout[bb.Id] {
            live[r] = e0
        }

        /* scan the instructions backwards */
        for i := e0 - 1; i >= s0; i-- {
            v := lay.Ins[i]

            /* definitions close the current interval */
            if def, ok := v.(IrDefinitions); ok {
                for _, r := range def.Definitions() {
                    if r.IsZero() {
                        continue
                    }
                    markref(*r)
                    if e, ok := live[*r]; ok {
                        addseg(*r, i, e)
                        delete(live, *r)
                    } else {
                        addseg(*r, i, i + 1)
                    }
                }
            }

            /* usages open a new interval */
            if use, ok := v.(IrUsages); ok {
                for _, r := range use.Usages() {
                    if !r.IsZero() {
                        markref(*r)
                        if _, ok := live[*r]; !ok {
                            live[*r] = i + 1
                        }
                    }
                }
            }

            /* C calls kill their clobber set at the call site */
            if call, ok := v.(*IrCall); ok {
                rm := call.Fn.ClobberSet()
                for ri := 0; ri < len(ArchRegs); ri++ {
                    if rm.Contains(ri) {
                        kr := mkreg(0, _K_arch, ri)
                        markref(kr)
                        addseg(kr, i, i + 1)
                    }
                }
            }
        }

        /* whatever is still open is live on entry to the block */
        for r, e := range live {
            addseg(r, s0, e)
        }
    }

    /* assign variable indexes in order of first appearance */
    seen := regset()
    order := make([]Reg, 0, len(ranges))

    visit := func(r Reg) {
        if !r.IsZero() && !seen.contains(r) {
            seen.add(r)
            order = append(order, r)
        }
    }

    /* forward walk over the layout */
    for _, v := range lay.Ins {
        if use, ok := v.(IrUsages); ok {
            for _, r := range use.Usages() { visit(*r) }
        }
        if def, ok := v.(IrDefinitions); ok {
            for _, r := range def.Definitions() { visit(*r) }
        }
        if call, ok := v.(*IrCall); ok {
            rm := call.Fn.ClobberSet()
            for ri := 0; ri < len(ArchRegs); ri++ {
                if rm.Contains(ri) {
                    visit(mkreg(0, _K_arch, ri))
                }
            }
        }
    }

    /* materialize the variable table */
    fn := &cfg.Func
    fn.Vars = make([]*Variable, 0, len(order))
    fn.vmap = make(map[Reg]*Variable, len(order))

    /* one variable per distinct register name */
    for id, r := range order {
        lr := ranges[r]
        lr.normalize()
        lr.SetWeight(weight[r])
        v := newVariable(id, r)
        v.live = *lr
        fn.Vars = append(fn.Vars, v)
        fn.vmap[r] = v
    }

    /* definition metadata over the same layout */
    fn.Meta = newVarMetadata(lay.Ins)
}
