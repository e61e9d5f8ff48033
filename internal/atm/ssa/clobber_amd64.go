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
    `unsafe`

    `github.com/chenzhuoyu/iasm/x86_64`
    `github.com/cloudwego/permafrost/internal/rt`
    `github.com/oleiade/lane`
    `golang.org/x/arch/x86/x86asm`
)

var branchTable = map[x86asm.Op]bool {
    x86asm.JA    : true,
    x86asm.JAE   : true,
    x86asm.JB    : true,
    x86asm.JBE   : true,
    x86asm.JCXZ  : true,
    x86asm.JE    : true,
    x86asm.JECXZ : true,
    x86asm.JG    : true,
    x86asm.JGE   : true,
    x86asm.JL    : true,
    x86asm.JLE   : true,
    x86asm.JNE   : true,
    x86asm.JNO   : true,
    x86asm.JNP   : true,
    x86asm.JNS   : true,
    x86asm.JO    : true,
    x86asm.JP    : true,
    x86asm.JRCXZ : true,
    x86asm.JS    : true,
}

var writeTable = map[x86asm.Op]bool {
    x86asm.MOV : true,
    x86asm.LEA : true,
    x86asm.XOR : true,
}

var registerTable = map[x86asm.Reg]x86_64.Register64 {
    x86asm.AL   : x86_64.RAX,
    x86asm.CL   : x86_64.RCX,
    x86asm.DL   : x86_64.RDX,
    x86asm.BL   : x86_64.RBX,
    x86asm.AH   : x86_64.RAX,
    x86asm.CH   : x86_64.RCX,
    x86asm.DH   : x86_64.RDX,
    x86asm.BH   : x86_64.RBX,
    x86asm.SPB  : x86_64.RSP,
    x86asm.BPB  : x86_64.RBP,
    x86asm.SIB  : x86_64.RSI,
    x86asm.DIB  : x86_64.RDI,
    x86asm.R8B  : x86_64.R8,
    x86asm.R9B  : x86_64.R9,
    x86asm.R10B : x86_64.R10,
    x86asm.R11B : x86_64.R11,
    x86asm.R12B : x86_64.R12,
    x86asm.R13B : x86_64.R13,
    x86asm.R14B : x86_64.R14,
    x86asm.R15B : x86_64.R15,
    x86asm.AX   : x86_64.RAX,
    x86asm.CX   : x86_64.RCX,
    x86asm.DX   : x86_64.RDX,
    x86asm.BX   : x86_64.RBX,
    x86asm.SP   : x86_64.RSP,
    x86asm.BP   : x86_64.RBP,
    x86asm.SI   : x86_64.RSI,
    x86asm.DI   : x86_64.RDI,
    x86asm.R8W  : x86_64.R8,
    x86asm.R9W  : x86_64.R9,
    x86asm.R10W : x86_64.R10,
    x86asm.R11W : x86_64.R11,
    x86asm.R12W : x86_64.R12,
    x86asm.R13W : x86_64.R13,
    x86asm.R14W : x86_64.R14,
    x86asm.R15W : x86_64.R15,
    x86asm.EAX  : x86_64.RAX,
    x86asm.ECX  : x86_64.RCX,
    x86asm.EDX  : x86_64.RDX,
    x86asm.EBX  : x86_64.RBX,
    x86asm.ESP  : x86_64.RSP,
    x86asm.EBP  : x86_64.RBP,
    x86asm.ESI  : x86_64.RSI,
    x86asm.EDI  : x86_64.RDI,
    x86asm.R8L  : x86_64.R8,
    x86asm.R9L  : x86_64.R9,
    x86asm.R10L : x86_64.R10,
    x86asm.R11L : x86_64.R11,
    x86asm.R12L : x86_64.R12,
    x86asm.R13L : x86_64.R13,
    x86asm.R14L : x86_64.R14,
    x86asm.R15L : x86_64.R15,
    x86asm.RAX  : x86_64.RAX,
    x86asm.RCX  : x86_64.RCX,
    x86asm.RDX  : x86_64.RDX,
    x86asm.RBX  : x86_64.RBX,
    x86asm.RSP  : x86_64.RSP,
    x86asm.RBP  : x86_64.RBP,
    x86asm.RSI  : x86_64.RSI,
    x86asm.RDI  : x86_64.RDI,
    x86asm.R8   : x86_64.R8,
    x86asm.R9   : x86_64.R9,
    x86asm.R10  : x86_64.R10,
    x86asm.R11  : x86_64.R11,
    x86asm.R12  : x86_64.R12,
    x86asm.R13  : x86_64.R13,
    x86asm.R14  : x86_64.R14,
    x86asm.R15  : x86_64.R15,
}

// resolveClobberSet computes the registers a native callee may clobber.
// Callees that cannot be analyzed are assumed to clobber the entire C
// ABI caller-saved set.
func resolveClobberSet(addr unsafe.Pointer) RegMask {
    if addr == nil {
        return ArchCallerSaved
    } else if rm, ok := scanClobberSet(addr); ok {
        return rm
    } else {
        return ArchCallerSaved
    }
}

// scanClobberSet walks the machine code at entry and records every
// register written to. The walk gives up on anything it cannot reason
// about locally: calls, indirect jumps and undecodable bytes.
func scanClobberSet(entry unsafe.Pointer) (RegMask, bool) {
    var ret RegMask
    buf := lane.NewQueue()
    vis := make(map[unsafe.Pointer]bool)

    /* schedule a branch target for scanning */
    enqueue := func(p unsafe.Pointer) {
        if !vis[p] {
            buf.Enqueue(p)
        }
    }

    /* scan every reachable block with BFS */
    for enqueue(entry); !buf.Empty(); {
        pc := buf.Dequeue().(unsafe.Pointer)

        /* parse every instruction in the block */
        for !vis[pc] {
            vis[pc] = true

            /* decode one instruction */
            ins, err := x86asm.Decode(rt.BytesFrom(pc, 15, 15), 64)
            if err != nil {
                return 0, false
            }

            /* calling into other functions, cannot analyze */
            if ins.Op == x86asm.CALL {
                return 0, false
            }

            /* every register write is treated as clobbering */
            if writeTable[ins.Op] {
                if reg, ok := ins.Args[0].(x86asm.Reg); ok {
                    if rr, rok := registerTable[reg]; rok && !ArchRegReserved[rr] {
                        ret = ret.Add(ArchRegIds[rr])
                    }
                }
            }

            /* check for returns */
            if ins.Op == x86asm.RET {
                break
            }

            /* next instruction */
            next := unsafe.Pointer(uintptr(pc) + uintptr(ins.Len))

            /* check for unconditional jumps */
            if ins.Op == x86asm.JMP {
                if rel, ok := ins.Args[0].(x86asm.Rel); ok {
                    enqueue(unsafe.Pointer(uintptr(next) + uintptr(rel)))
                    break
                } else {
                    return 0, false
                }
            }

            /* conditional branches fall through and link the target */
            if branchTable[ins.Op] {
                if rel, ok := ins.Args[0].(x86asm.Rel); ok {
                    enqueue(unsafe.Pointer(uintptr(next) + uintptr(rel)))
                }
            }

            /* advance within the block */
            pc = next
        }
    }

    /* all reachable code was analyzed */
    return ret, true
}
