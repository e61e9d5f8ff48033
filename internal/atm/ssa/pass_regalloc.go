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

import (
    `errors`
    `fmt`
    `io`
    `sort`

    `github.com/cloudwego/permafrost/internal/opts`
)

// ErrNoRegister is recorded on the function when an infinite-weight
// live range cannot be placed in any physical register.
var ErrNoRegister = errors.New(
    "regalloc: unable to find a physical register for an infinite-weight live range",
)

// RegAlloc assigns a physical register to every variable of the CFG
// with a linear scan over the live ranges, based on "Linear Scan
// Register Allocation in the Context of SSA Form and Register
// Constraints" by Hanspeter Mössenböck and Michael Pfeiffer. The
// implementation is modified to take register affinity into account,
// and to allow two interfering variables to share one register when
// the interference comes from a plain register-to-register copy.
//
// Requires Layout and Liveness to run first. Results are left in the
// final register field of each variable; a variable that loses
// eviction keeps NoReg and is assigned a spill slot downstream.
type RegAlloc struct {
    Mask RegMask
}

func (self RegAlloc) Apply(cfg *CFG) {
    mask := self.Mask

    /* default to every allocatable register */
    if !mask.Any() {
        mask = ArchRegAllocatable
    }

    /* optionally render the live ranges before scanning */
    if fp := opts.LiveRangeSVG; fp != "" {
        drawLiveRanges(fp, &cfg.Func)
    }

    /* run the scan to completion */
    st := newScanState(&cfg.Func, mask, cfg.Log)
    st.scan()

    /* optionally dump the final assignment */
    if opts.DebugRegAlloc {
        dumpRegAllocState(&cfg.Func)
    }
}

type _ScanState struct {
    fn         *FuncData
    mask       RegMask
    tr         *_Tracer
    uses       []int
    unhandled  []*Variable
    precolored []*Variable
    active     []*Variable
    inactive   []*Variable
    handled    []*Variable
}

func newScanState(fn *FuncData, mask RegMask, log io.Writer) *_ScanState {
    return &_ScanState {
        fn   : fn,
        mask : mask,
        tr   : newTracer(log),
    }
}

func (self *_ScanState) scan() {
    if !self.mask.Any() {
        panic("regalloc: empty register mask")
    }

    /* gather the live ranges of all variables */
    self.init()

    /* consume the unhandled ranges in start order */
    for len(self.unhandled) > 0 {
        self.step()
    }

    /* flush the remaining state and commit the assignment */
    self.finish()
}

func (self *_ScanState) init() {
    nb := len(self.fn.Vars)
    self.uses = make([]int, len(ArchRegs))
    self.unhandled = make([]*Variable, 0, nb)
    self.precolored = self.precolored[:0]
    self.active = self.active[:0]
    self.inactive = self.inactive[:0]
    self.handled = make([]*Variable, 0, nb)

    /* add every allocatable variable to the unhandled set */
    for _, v := range self.fn.Vars {
        /* zero-weight variables are spill slots */
        if v.live.Weight().IsZero() {
            continue
        }

        /* unreferenced variables have no live range at all */
        if v.live.Empty() {
            continue
        }

        /* restore the canonical range and clear the tentative register */
        v.rcur = NoReg
        v.live.Untrim()
        self.unhandled = append(self.unhandled, v)

        /* precolored variables keep their register, and nothing may evict them */
        if v.Precolored() {
            v.rcur = v.rdef
            v.live.SetWeight(WeightInf)
            self.precolored = append(self.precolored, v)
        }
    }

    /* reverse sort so consumption is a tail pop */
    revsort(self.unhandled)
    revsort(self.precolored)
}

/* sort descending by (start, index) so the earliest range sits at the tail */
func revsort(vv []*Variable) {
    sort.Slice(vv, func(i int, j int) bool {
        a, b := vv[i], vv[j]
        if a.live.Start() != b.live.Start() {
            return a.live.Start() > b.live.Start()
        } else {
            return a.id > b.id
        }
    })
}

func (self *_ScanState) step() {
    nu := len(self.unhandled)
    cur := self.unhandled[nu - 1]
    self.unhandled = self.unhandled[:nu - 1]
    self.tr.printf("\n")
    self.tr.event("Considering", cur)

    /* restrict the mask to registers legal for the variable's class */
    rmask := self.mask.Intersect(ArchRegClassMask(cur.Ptr()))

    /* precolored ranges definitely get their register: earlier ranges
     * avoided it, later ranges cannot evict its infinite weight */
    if cur.Precolored() {
        if cur.rcur != cur.rdef {
            panic("regalloc: inconsistent precolored register for " + cur.String())
        }
        self.tr.event("Precoloring", cur)
        self.active = append(self.active, cur)
        self.uses[cur.rcur]++
        np := len(self.precolored)
        if np == 0 || self.precolored[np - 1] != cur {
            panic("regalloc: unhandled precolored list out of sync")
        }
        self.precolored = self.precolored[:np - 1]
        return
    }

    start := cur.live.Start()

    /* check for active ranges that expired or became inactive */
    act := self.active
    self.active = self.active[:0]
    for _, item := range act {
        item.live.Trim(start)
        if item.live.EndsBefore(&cur.live) {
            self.tr.event("Expiring", item)
            self.handled = append(self.handled, item)
            self.regUsesDec(item.rcur)
        } else if !item.live.OverlapsInst(start) {
            self.tr.event("Inactivating", item)
            self.inactive = append(self.inactive, item)
            self.regUsesDec(item.rcur)
        } else {
            self.active = append(self.active, item)
        }
    }

    /* check for inactive ranges that expired or reactivated; pure
     * point-valued ranges can do neither before the very end, so don't
     * bother checking them (they are typically call kill sets) */
    ina := self.inactive
    self.inactive = self.inactive[:0]
    for _, item := range ina {
        item.live.Trim(start)
        if !item.live.IsNonpoints() {
            self.inactive = append(self.inactive, item)
        } else if item.live.EndsBefore(&cur.live) {
            self.tr.event("Expiring", item)
            self.handled = append(self.handled, item)
        } else if item.live.OverlapsInst(start) {
            self.tr.event("Reactivating", item)
            self.active = append(self.active, item)
            self.uses[item.rcur]++
        } else {
            self.inactive = append(self.inactive, item)
        }
    }

    /* calculate the free register set */
    free := rmask
    for i := 0; i < len(ArchRegs); i++ {
        if self.uses[i] > 0 {
            free = free.Del(i)
        }
    }

    /* infer register preference and allowable overlap: prefer some
     * already-assigned source of the defining instruction, so the
     * assignment becomes a nop. The source's register may be shared
     * while still live only when the definition is a single plain
     * copy and the source is never redefined inside Cur's range. */
    meta := self.fn.Meta
    preferReg := NoReg
    allowOverlap := false
    var prefer *Variable

    if def, ok := meta.FirstDefinition(cur.name); ok {
        isAssign := IrIsSimpleAssign(def)
        isSingleDef := !meta.IsMultiDef(cur.name)

        /* consider every source operand with a register so far */
        if use, uok := def.(IrUsages); uok {
            for _, r := range use.Usages() {
                src, vok := self.fn.valueOf(*r)
                if !vok || src.rcur == NoReg || !rmask.Contains(src.rcur) {
                    continue
                }
                if !free.Contains(src.rcur) {
                    allowOverlap = isSingleDef && isAssign && !self.overlapsDefs(cur, src)
                }
                if allowOverlap || free.Contains(src.rcur) {
                    prefer = src
                    preferReg = src.rcur
                }
            }
        }
    }

    /* dump the initial preference */
    if prefer != nil {
        self.tr.printf(
            "Initial Prefer=%s R=%d LIVE=%s Overlap=%v\n",
            prefer, preferReg, prefer.live.String(), allowOverlap,
        )
    }

    /* registers held by overlapping inactive ranges are not free; an
     * inactive range other than Prefer sharing Prefer's register with a
     * definition inside Cur's range would clobber the shared value */
    for _, item := range self.inactive {
        if item.live.Overlaps(&cur.live) {
            free = free.Del(item.rcur)
            if allowOverlap && item != prefer && item.rcur == preferReg && self.overlapsDefs(cur, item) {
                allowOverlap = false
                self.tr.disableOverlap("Inactive", item, meta)
            }
        }
    }

    /* same check against the active ranges (Free is already accurate
     * for those through the register use counters) */
    for _, item := range self.active {
        if allowOverlap && item != prefer && item.rcur == preferReg && self.overlapsDefs(cur, item) {
            allowOverlap = false
            self.tr.disableOverlap("Active", item, meta)
        }
    }

    /* registers of overlapping precolored unhandled ranges get infinite
     * weight so they are no eviction candidates. The endsBefore early
     * exit keeps this walk linear in practice. */
    weights := make([]RegWeight, len(ArchRegs))
    pmask := RegMask(0)

    for i := len(self.precolored) - 1; i >= 0; i-- {
        item := self.precolored[i]
        if cur.live.EndsBefore(&item.live) {
            break
        }
        if item.live.Overlaps(&cur.live) {
            rr := item.rdef
            weights[rr] = WeightInf
            free = free.Del(rr)
            pmask = pmask.Add(rr)
            if allowOverlap && rr == preferReg {
                allowOverlap = false
                self.tr.disableOverlap("PrecoloredUnhandled", item, meta)
            }
        }
    }

    /* dump physical register availability */
    self.tr.availability(rmask, self.uses, free, pmask)

    if prefer != nil && (allowOverlap || free.Contains(preferReg)) {
        /* first choice: the preferred register, either free or shared
         * with its linked variable. Sharing pushes the use counter
         * above one, that is the overlap mechanism. */
        cur.rcur = preferReg
        self.tr.event("Preferring", cur)
        self.uses[preferReg]++
        self.active = append(self.active, cur)
    } else if free.Any() {
        /* second choice: the lowest numbered free register */
        cur.rcur = free.First()
        self.tr.event("Allocating", cur)
        self.uses[cur.rcur]++
        self.active = append(self.active, cur)
    } else {
        /* no free registers: find the lowest weight register and check
         * whether Cur has priority over its current holders */
        for _, item := range self.active {
            self.checkRegTmp(item)
            weights[item.rcur] = weights[item.rcur].Add(item.live.Weight())
        }
        for _, item := range self.inactive {
            self.checkRegTmp(item)
            if item.live.Overlaps(&cur.live) {
                weights[item.rcur] = weights[item.rcur].Add(item.live.Weight())
            }
        }

        /* lowest weight register, ties broken by register number */
        min := rmask.First()
        if min == NoReg {
            panic("regalloc: no legal registers for " + cur.String())
        }
        for i := min + 1; i < len(ArchRegs); i++ {
            if rmask.Contains(i) && weights[i].Less(weights[min]) {
                min = i
            }
        }

        if !weights[min].Less(cur.live.Weight()) {
            /* Cur has no priority over any live range, it gets no
             * register. An unplaceable infinite-weight range is an
             * allocation failure, recorded on the function; the scan
             * continues so the final state is still consistent. */
            self.handled = append(self.handled, cur)
            if cur.live.Weight().IsInf() {
                self.fn.setError(ErrNoRegister)
            }
        } else {
            /* evict every active range on the chosen register */
            act := self.active
            self.active = self.active[:0]
            for _, item := range act {
                if item.rcur != min {
                    self.active = append(self.active, item)
                } else {
                    self.tr.event("Evicting", item)
                    self.regUsesDec(min)
                    item.rcur = NoReg
                    self.handled = append(self.handled, item)
                }
            }

            /* also evict the inactive ranges on it, but only those
             * overlapping Cur: evicting the others serves nothing and
             * could throw out an infinite-weight precolored range such
             * as a call kill set. Inactive ranges don't contribute to
             * the use counters, so those stay untouched. */
            ina := self.inactive
            self.inactive = self.inactive[:0]
            for _, item := range ina {
                if item.rcur != min || !item.live.Overlaps(&cur.live) {
                    self.inactive = append(self.inactive, item)
                } else {
                    self.tr.event("Evicting", item)
                    item.rcur = NoReg
                    self.handled = append(self.handled, item)
                }
            }

            /* the register now belongs to Cur */
            cur.rcur = min
            self.uses[min]++
            self.active = append(self.active, cur)
            self.tr.event("Allocating", cur)
        }
    }

    /* dump the worklist state after every step */
    self.snapshot()
}

func (self *_ScanState) finish() {
    /* move everything still active or inactive to handled */
    for _, v := range self.active {
        self.regUsesDec(v.rcur)
        self.handled = append(self.handled, v)
    }
    for _, v := range self.inactive {
        self.handled = append(self.handled, v)
    }

    /* clear the worklists */
    self.active = self.active[:0]
    self.inactive = self.inactive[:0]
    self.snapshot()

    /* commit the tentative assignments */
    for _, v := range self.handled {
        if v.rcur == NoReg {
            self.tr.printf("Not assigning %s\n", v)
        } else if v.rcur == v.rdef {
            self.tr.assign("Reassigning", v)
        } else {
            self.tr.assign("Assigning", v)
        }
        v.rfin = v.rcur
    }
}

// overlapsDefs checks whether any definition of item falls within cur's
// trimmed live range, which would clobber a register shared with cur.
func (self *_ScanState) overlapsDefs(cur *Variable, item *Variable) bool {
    for _, n := range self.fn.Meta.Definitions(item.name) {
        if cur.live.OverlapsInst(n) {
            return true
        }
    }
    return false
}

func (self *_ScanState) checkRegTmp(item *Variable) {
    if item.rcur == NoReg {
        panic("regalloc: no tentative register for " + item.String())
    }
}

func (self *_ScanState) regUsesDec(r int) {
    self.uses[r]--
    if self.uses[r] < 0 {
        panic(fmt.Sprintf("regalloc: negative use count for register %d", r))
    }
}

func (self *_ScanState) snapshot() {
    if self.tr.on() {
        self.tr.printf("**** Current regalloc state:\n")
        self.tr.section("Handled", self.handled)
        self.tr.reversed("Unhandled", self.unhandled)
        self.tr.section("Active", self.active)
        self.tr.section("Inactive", self.inactive)
    }
}

type _Tracer struct {
    w io.Writer
}

func newTracer(w io.Writer) *_Tracer {
    return &_Tracer { w: w }
}

func (self *_Tracer) on() bool {
    return self.w != nil
}

func (self *_Tracer) printf(format string, args ...interface{}) {
    if self.on() {
        fmt.Fprintf(self.w, format, args...)
    }
}

func (self *_Tracer) event(label string, v *Variable) {
    self.printf("%-12s %s\n", label, v.dump())
}

func (self *_Tracer) assign(label string, v *Variable) {
    self.printf("%s %s(r%d) to %s\n", label, ArchRegNames[ArchRegs[v.rcur]], v.rcur, v)
}

func (self *_Tracer) section(name string, vv []*Variable) {
    self.printf("++++++ %s:\n", name)
    for _, v := range vv {
        self.printf("%s\n", v.dump())
    }
}

func (self *_Tracer) reversed(name string, vv []*Variable) {
    self.printf("++++++ %s:\n", name)
    for i := len(vv) - 1; i >= 0; i-- {
        self.printf("%s\n", vv[i].dump())
    }
}

func (self *_Tracer) disableOverlap(cause string, v *Variable, meta *VarMetadata) {
    self.printf(
        "Disabling Overlap due to %s %s LIVE=%s Defs=%s\n",
        cause, v, v.live.String(), intslicerepr(meta.Definitions(v.name)),
    )
}

func (self *_Tracer) availability(rmask RegMask, uses []int, free RegMask, pmask RegMask) {
    if !self.on() {
        return
    }
    for i := 0; i < len(ArchRegs); i++ {
        if rmask.Contains(i) {
            self.printf("%s(U=%d,F=%d,P=%d) ", ArchRegNames[ArchRegs[i]], uses[i], b2i(free.Contains(i)), b2i(pmask.Contains(i)))
        }
    }
    self.printf("\n")
}
