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
    `bytes`
    `testing`

    `github.com/stretchr/testify/require`
)

func tr(i int) Reg {
    return mkreg(0, _K_norm, i)
}

func tkill(i int) Reg {
    return mkreg(0, _K_arch, i)
}

func mkvar(id int, name Reg, w RegWeight, segs ...[2]int) *Variable {
    v := newVariable(id, name)
    for _, s := range segs {
        v.live.add(s[0], s[1])
    }
    v.live.normalize()
    v.live.w = w
    return v
}

func mkfunc(ins []IrNode, vars ...*Variable) *FuncData {
    fd := new(FuncData)
    fd.Layout = &FuncLayout { Ins: ins, Start: map[int]int{}, Block: map[int]*BasicBlock{} }
    fd.Meta = newVarMetadata(ins)
    fd.Vars = vars
    fd.vmap = make(map[Reg]*Variable, len(vars))
    for _, v := range vars {
        fd.vmap[v.name] = v
    }
    return fd
}

func padding(n int) []IrNode {
    nn := make([]IrNode, n)
    for i := range nn {
        nn[i] = new(IrBreakpoint)
    }
    return nn
}

func runScan(fd *FuncData, mask RegMask) string {
    buf := new(bytes.Buffer)
    st := newScanState(fd, mask, buf)
    st.scan()
    return buf.String()
}

func finalOf(t *testing.T, v *Variable) int {
    r, ok := v.FinalReg()
    require.True(t, ok, "%s has no register", v)
    return r
}

func requireSpilled(t *testing.T, v *Variable) {
    _, ok := v.FinalReg()
    require.False(t, ok, "%s should have been spilled", v)
}

func TestRegAlloc_CopyChainSharesOneRegister(t *testing.T) {
    ins := padding(5)
    ins[0] = &IrConstInt { R: tr(1), V: 42 }
    ins[2] = &IrCopy { R: tr(2), V: tr(1) }
    ins[4] = &IrCopy { R: tr(3), V: tr(2) }

    v1 := mkvar(0, tr(1), 1, [2]int { 0, 10 })
    v2 := mkvar(1, tr(2), 1, [2]int { 2, 12 })
    v3 := mkvar(2, tr(3), 1, [2]int { 4, 14 })
    fd := mkfunc(ins, v1, v2, v3)

    /* every definition is a plain copy of the previous value, and no
     * source is redefined inside its successor's range, so all three
     * may share one register */
    out := runScan(fd, RegMask(0).Add(0).Add(1))
    require.Equal(t, 0, finalOf(t, v1))
    require.Equal(t, 0, finalOf(t, v2))
    require.Equal(t, 0, finalOf(t, v3))
    require.Contains(t, out, "Preferring")
    require.NotContains(t, out, "Evicting")
    require.NoError(t, fd.Error)
}

func TestRegAlloc_PrecoloredWins(t *testing.T) {
    p := mkvar(0, tkill(0), 1, [2]int { 5, 8 })
    v := mkvar(1, tr(1), 1, [2]int { 0, 10 })
    fd := mkfunc(padding(10), p, v)

    out := runScan(fd, RegMask(0).Add(0))
    require.Equal(t, 0, finalOf(t, p))
    requireSpilled(t, v)
    require.Contains(t, out, "Precoloring")
    require.NoError(t, fd.Error)
}

func TestRegAlloc_LowestNumberedFreeRegister(t *testing.T) {
    v1 := mkvar(0, tr(1), 1, [2]int { 0, 2 })
    v2 := mkvar(1, tr(2), 1, [2]int { 3, 5 })
    v3 := mkvar(2, tr(3), 1, [2]int { 6, 8 })
    fd := mkfunc(padding(8), v1, v2, v3)

    /* non-overlapping ranges reuse the first register as it expires */
    runScan(fd, RegMask(0).Add(0).Add(1).Add(2))
    require.Equal(t, 0, finalOf(t, v1))
    require.Equal(t, 0, finalOf(t, v2))
    require.Equal(t, 0, finalOf(t, v3))
}

func TestRegAlloc_EvictionByWeight(t *testing.T) {
    lo := mkvar(0, tr(1), 1, [2]int { 0, 10 })
    hi := mkvar(1, tr(2), 10, [2]int { 2, 12 })
    fd := mkfunc(padding(12), lo, hi)

    out := runScan(fd, RegMask(0).Add(0))
    requireSpilled(t, lo)
    require.Equal(t, 0, finalOf(t, hi))
    require.Contains(t, out, "Evicting")
    require.NoError(t, fd.Error)
}

func TestRegAlloc_OverlapDisabledByConflictingDefinition(t *testing.T) {
    ins := padding(11)
    ins[0] = &IrConstInt { R: tr(1), V: 1 }          // x := 1
    ins[4] = &IrConstInt { R: tr(2), V: 2 }          // src := 2
    ins[6] = &IrCopy { R: tr(3), V: tr(2) }          // dst := src
    ins[10] = &IrConstInt { R: tr(1), V: 3 }         // x := 3, inside dst's range

    x := mkvar(0, tr(1), 1, [2]int { 0, 3 }, [2]int { 8, 20 })
    src := mkvar(1, tr(2), 1, [2]int { 4, 7 })
    dst := mkvar(2, tr(3), 1, [2]int { 6, 12 })
    fd := mkfunc(ins, x, src, dst)

    /* dst prefers src's register, but the inactive range x shares that
     * register and is redefined inside dst's range, so sharing would
     * clobber it: the overlap must be declined */
    out := runScan(fd, RegMask(0).Add(0))
    require.Contains(t, out, "Initial Prefer=%r2")
    require.Contains(t, out, "Disabling Overlap due to Inactive")
    requireSpilled(t, dst)
    require.NoError(t, fd.Error)
}

func TestRegAlloc_InfiniteWeightFailure(t *testing.T) {
    a := mkvar(0, tr(1), 1, [2]int { 0, 10 })
    b := mkvar(1, tr(2), 1, [2]int { 2, 12 })
    a.live.SetWeight(WeightInf)
    b.live.SetWeight(WeightInf)
    fd := mkfunc(padding(12), a, b)

    /* the second infinite-weight range cannot be placed, the failure is
     * recorded and the scan still runs to completion */
    runScan(fd, RegMask(0).Add(0))
    require.Equal(t, 0, finalOf(t, a))
    requireSpilled(t, b)
    require.ErrorIs(t, fd.Error, ErrNoRegister)
}

func TestRegAlloc_ZeroWeightAndEmptyRangesAreSkipped(t *testing.T) {
    sp := mkvar(0, tr(1), WeightZero, [2]int { 0, 10 })
    un := mkvar(1, tr(2), 1)
    ok := mkvar(2, tr(3), 1, [2]int { 0, 4 })
    fd := mkfunc(padding(10), sp, un, ok)

    runScan(fd, RegMask(0).Add(0))
    requireSpilled(t, sp)
    requireSpilled(t, un)
    require.Equal(t, 0, finalOf(t, ok))
}

func TestRegAlloc_InactiveEvictionSparesNonOverlapping(t *testing.T) {
    /* k1 and k2 both hold r0 and both are inactive when v comes up.
     * Only k1 overlaps v, so the eviction may throw out k1 but must
     * leave k2 alone, it gets to keep its register to the very end. */
    k2 := mkvar(0, tr(1), 5, [2]int { 0, 2 }, [2]int { 20, 22 })
    k1 := mkvar(1, tr(2), 1, [2]int { 2, 4 }, [2]int { 8, 10 })
    v := mkvar(2, tr(3), 10, [2]int { 5, 9 })
    fd := mkfunc(padding(22), k2, k1, v)

    out := runScan(fd, RegMask(0).Add(0))
    require.Equal(t, 0, finalOf(t, k2))
    require.Equal(t, 0, finalOf(t, v))
    requireSpilled(t, k1)
    require.Contains(t, out, "Evicting")
    require.NoError(t, fd.Error)
}

func TestRegAlloc_InactiveRegisterIsReusableInAHole(t *testing.T) {
    /* k goes inactive over a long lifetime hole; v fits entirely
     * inside the hole and may take the same register without any
     * eviction at all */
    k := mkvar(0, tr(1), 5, [2]int { 0, 2 }, [2]int { 20, 22 })
    v := mkvar(1, tr(2), 1, [2]int { 4, 6 })
    fd := mkfunc(padding(22), k, v)

    out := runScan(fd, RegMask(0).Add(0))
    require.Equal(t, 0, finalOf(t, k))
    require.Equal(t, 0, finalOf(t, v))
    require.NotContains(t, out, "Evicting")
    require.NoError(t, fd.Error)
}

func checkScanInvariants(t *testing.T, st *_ScanState, total int) {
    /* use counters must agree with the active set */
    counts := make([]int, len(ArchRegs))
    for _, v := range st.active {
        require.NotEqual(t, NoReg, v.rcur)
        counts[v.rcur]++
    }
    require.Equal(t, counts, st.uses)

    /* the worklists must partition the considered variables */
    seen := make(map[int]int, total)
    for _, vv := range [][]*Variable { st.unhandled, st.active, st.inactive, st.handled } {
        for _, v := range vv {
            seen[v.id]++
            require.Equal(t, 1, seen[v.id], "%s is in more than one worklist", v)
        }
    }
    require.Equal(t, total, len(seen))

    /* two active ranges may share a register only through overlap
     * sharing: at most one of them is defined inside the other */
    for i, a := range st.active {
        for _, b := range st.active[:i] {
            if a.rcur == b.rcur {
                ab := st.overlapsDefs(a, b)
                ba := st.overlapsDefs(b, a)
                require.False(t, ab && ba, "%s and %s clobber each other", a, b)
            }
        }
    }

    /* the precolored list must be a subsequence of the unhandled list */
    j := 0
    for _, v := range st.unhandled {
        if j < len(st.precolored) && st.precolored[j] == v {
            j++
        }
    }
    require.Equal(t, len(st.precolored), j)
}

func TestRegAlloc_ScanInvariants(t *testing.T) {
    ins := padding(14)
    ins[0] = &IrConstInt { R: tr(1), V: 1 }
    ins[2] = &IrCopy { R: tr(2), V: tr(1) }
    ins[4] = &IrCopy { R: tr(3), V: tr(2) }

    vars := []*Variable {
        mkvar(0, tr(1), 1, [2]int { 0, 10 }),
        mkvar(1, tr(2), 1, [2]int { 2, 12 }),
        mkvar(2, tr(3), 1, [2]int { 4, 14 }),
        mkvar(3, tkill(2), 1, [2]int { 6, 7 }),
        mkvar(4, tr(5), 3, [2]int { 1, 9 }),
    }

    fd := mkfunc(ins, vars...)
    st := newScanState(fd, RegMask(0).Add(0).Add(1).Add(2), nil)
    st.init()

    /* every main step must preserve the §8-style invariants */
    total := len(st.unhandled)
    for len(st.unhandled) > 0 {
        st.step()
        checkScanInvariants(t, st, total)
    }
    st.finish()
    checkScanInvariants(t, st, total)
}

func TestRegAlloc_ScanIsIdempotent(t *testing.T) {
    build := func() *FuncData {
        ins := padding(14)
        ins[0] = &IrConstInt { R: tr(1), V: 1 }
        ins[2] = &IrCopy { R: tr(2), V: tr(1) }
        ins[4] = &IrCopy { R: tr(3), V: tr(2) }
        return mkfunc(
            ins,
            mkvar(0, tr(1), 1, [2]int { 0, 10 }),
            mkvar(1, tr(2), 1, [2]int { 2, 12 }),
            mkvar(2, tr(3), 1, [2]int { 4, 14 }),
            mkvar(3, tkill(1), 1, [2]int { 3, 4 }),
            mkvar(4, tr(5), 7, [2]int { 1, 9 }),
        )
    }

    mask := RegMask(0).Add(0).Add(1)
    fd := build()
    out1 := runScan(fd, mask)
    fin1 := make([]int, 0, len(fd.Vars))
    for _, v := range fd.Vars { fin1 = append(fin1, v.rfin) }

    /* rerunning the scan on the same function must produce the same
     * assignment and the same trace, the init step restores all the
     * tentative state */
    out2 := runScan(fd, mask)
    fin2 := make([]int, 0, len(fd.Vars))
    for _, v := range fd.Vars { fin2 = append(fin2, v.rfin) }
    require.Equal(t, fin1, fin2)
    require.Equal(t, out1, out2)
}

func TestRegAlloc_EnoughRegistersMeansNoSpills(t *testing.T) {
    /* four mutually overlapping ranges, four registers: every
     * finite-weight variable must end up with a register */
    vars := []*Variable {
        mkvar(0, tr(1), 1, [2]int { 0, 10 }),
        mkvar(1, tr(2), 1, [2]int { 1, 11 }),
        mkvar(2, tr(3), 1, [2]int { 2, 12 }),
        mkvar(3, tr(4), 1, [2]int { 3, 13 }),
    }

    fd := mkfunc(padding(13), vars...)
    out := runScan(fd, RegMask(0).Add(0).Add(1).Add(2).Add(3))
    for _, v := range vars {
        finalOf(t, v)
    }
    require.NotContains(t, out, "Evicting")
    require.NoError(t, fd.Error)
}

func TestRegAlloc_TraceSnapshots(t *testing.T) {
    v1 := mkvar(0, tr(1), 1, [2]int { 0, 4 })
    v2 := mkvar(1, tr(2), 1, [2]int { 1, 5 })
    fd := mkfunc(padding(5), v1, v2)

    out := runScan(fd, RegMask(0).Add(0).Add(1))
    require.Contains(t, out, "Considering")
    require.Contains(t, out, "Allocating")
    require.Contains(t, out, "**** Current regalloc state:")
    require.Contains(t, out, "++++++ Handled:")
    require.Contains(t, out, "++++++ Unhandled:")
    require.Contains(t, out, "++++++ Active:")
    require.Contains(t, out, "++++++ Inactive:")
    require.Contains(t, out, "Assigning rax(r0) to %r1")
}

func TestRegAlloc_EmptyMaskPanics(t *testing.T) {
    fd := mkfunc(padding(1), mkvar(0, tr(1), 1, [2]int { 0, 1 }))
    require.Panics(t, func() { runScan(fd, 0) })
}
