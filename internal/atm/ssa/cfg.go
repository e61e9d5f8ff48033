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
    `io`
)

type BasicBlock struct {
    Id   int
    Ins  []IrNode
    Term IrTerminator
}

func (self *BasicBlock) AddInstr(v IrNode) {
    self.Ins = append(self.Ins, v)
}

func (self *BasicBlock) TermBranch(to *BasicBlock) {
    self.Term = &IrSwitch { Ln: to }
}

func (self *BasicBlock) TermCondition(v Reg, t *BasicBlock, f *BasicBlock) {
    self.Term = &IrSwitch { V: v, Ln: f, Br: map[int64]*BasicBlock { 1: t } }
}

func (self *BasicBlock) TermReturn(rr ...Reg) {
    self.Term = &IrReturn { R: rr }
}

type CFG struct {
    Root *BasicBlock
    Func FuncData
    Log  io.Writer
    maxb int
    maxr int
}

func CreateCFG() (cfg *CFG) {
    cfg = new(CFG)
    cfg.Root = cfg.CreateBlock()
    return
}

func (self *CFG) MaxBlock() int {
    return self.maxb
}

func (self *CFG) CreateBlock() (bb *BasicBlock) {
    bb = &BasicBlock { Id: self.maxb }
    self.maxb++
    return
}

func (self *CFG) CreateRegister(ptr bool) Reg {
    i := self.maxr
    self.maxr++

    /* pointer and scalar registers share the index space */
    if ptr {
        return mkreg(1, _K_norm, i)
    } else {
        return mkreg(0, _K_norm, i)
    }
}

func (self *CFG) PostOrder() *BasicBlockIter {
    return newBasicBlockIter(self)
}

type Pass interface {
    Apply(*CFG)
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

var Passes = [...]PassDescriptor {
    { Name: "Instruction Layout"   , Pass: new(Layout) },
    { Name: "Liveness Analysis"    , Pass: new(Liveness) },
    { Name: "Register Allocation"  , Pass: new(RegAlloc) },
}

func executeBackendPasses(cfg *CFG) {
    for _, p := range Passes {
        p.Pass.Apply(cfg)
    }
}

// Compile runs the backend passes over the CFG, leaving the register
// assignment of every variable in cfg.Func.Vars.
func Compile(cfg *CFG) error {
    executeBackendPasses(cfg)
    return cfg.Func.Error
}
