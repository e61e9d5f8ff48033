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
    `fmt`
    `strings`

    `github.com/chenzhuoyu/iasm/x86_64`
)

var ArchRegs = [...]x86_64.Register64 {
    x86_64.RAX,
    x86_64.RCX,
    x86_64.RDX,
    x86_64.RBX,
    x86_64.RSP,
    x86_64.RBP,
    x86_64.RSI,
    x86_64.RDI,
    x86_64.R8,
    x86_64.R9,
    x86_64.R10,
    x86_64.R11,
    x86_64.R12,
    x86_64.R13,
    x86_64.R14,
    x86_64.R15,
}

var ArchRegIds = map[x86_64.Register64]int {
    x86_64.RAX : 0,
    x86_64.RCX : 1,
    x86_64.RDX : 2,
    x86_64.RBX : 3,
    x86_64.RSP : 4,
    x86_64.RBP : 5,
    x86_64.RSI : 6,
    x86_64.RDI : 7,
    x86_64.R8  : 8,
    x86_64.R9  : 9,
    x86_64.R10 : 10,
    x86_64.R11 : 11,
    x86_64.R12 : 12,
    x86_64.R13 : 13,
    x86_64.R14 : 14,
    x86_64.R15 : 15,
}

var ArchRegNames = map[x86_64.Register64]string {
    x86_64.RAX : "rax",
    x86_64.RCX : "rcx",
    x86_64.RDX : "rdx",
    x86_64.RBX : "rbx",
    x86_64.RSP : "rsp",
    x86_64.RBP : "rbp",
    x86_64.RSI : "rsi",
    x86_64.RDI : "rdi",
    x86_64.R8  : "r8",
    x86_64.R9  : "r9",
    x86_64.R10 : "r10",
    x86_64.R11 : "r11",
    x86_64.R12 : "r12",
    x86_64.R13 : "r13",
    x86_64.R14 : "r14",
    x86_64.R15 : "r15",
}

var ArchRegReserved = map[x86_64.Register64]bool {
    x86_64.RSP : true,
    x86_64.RBP : true,
}

// IrSetArch converts a register to an arch-specific (precolored) register.
func IrSetArch(rr Reg, reg x86_64.Register64) Reg {
    if id, ok := ArchRegIds[reg]; !ok {
        panic("invalid arch-specific register: " + reg.String())
    } else if rr.Ptr() {
        return mkreg(1, _K_arch, id)
    } else {
        return mkreg(0, _K_arch, id)
    }
}

// RegMask is a bit-set of physical register numbers, one bit
// per entry of ArchRegs.
type RegMask uint32

func regmask(rr ...x86_64.Register64) (rm RegMask) {
    for _, r := range rr { rm = rm.Add(ArchRegIds[r]) }
    return
}

func (self RegMask) Any() bool {
    return self != 0
}

func (self RegMask) Contains(r int) bool {
    return r >= 0 && self & (1 << r) != 0
}

func (self RegMask) Add(r int) RegMask {
    return self | (1 << r)
}

func (self RegMask) Del(r int) RegMask {
    return self &^ (1 << r)
}

func (self RegMask) Union(rm RegMask) RegMask {
    return self | rm
}

func (self RegMask) Intersect(rm RegMask) RegMask {
    return self & rm
}

// First returns the lowest-numbered register in the mask, or NoReg
// if the mask is empty.
func (self RegMask) First() int {
    for i := 0; i < len(ArchRegs); i++ {
        if self.Contains(i) {
            return i
        }
    }
    return NoReg
}

func (self RegMask) String() string {
    nb := len(ArchRegs)
    rr := make([]string, 0, nb)

    /* convert every register */
    for i := 0; i < nb; i++ {
        if self.Contains(i) {
            rr = append(rr, ArchRegNames[ArchRegs[i]])
        }
    }

    /* join them together */
    return fmt.Sprintf(
        "{%s}",
        strings.Join(rr, ", "),
    )
}

var (
    /* all the registers that the allocator may use */
    ArchRegAllocatable = allocatableRegs()

    /* registers that a C function may freely clobber */
    ArchCallerSaved = regmask(
        x86_64.RAX,
        x86_64.RCX,
        x86_64.RDX,
        x86_64.RSI,
        x86_64.RDI,
        x86_64.R8,
        x86_64.R9,
        x86_64.R10,
        x86_64.R11,
    )
)

func allocatableRegs() (rm RegMask) {
    for i, r := range ArchRegs {
        if !ArchRegReserved[r] {
            rm = rm.Add(i)
        }
    }
    return
}

// ArchRegClassMask returns the legal register set for a register class.
// Pointer values and scalar values draw from the same general purpose
// registers on this target, pointer-ness only matters to the stack maps.
func ArchRegClassMask(ptr bool) RegMask {
    return ArchRegAllocatable
}
