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
)

type FuncData struct {
    Layout *FuncLayout
    Vars   []*Variable
    Meta   *VarMetadata
    Error  error
    vmap   map[Reg]*Variable
}

func (self *FuncData) valueOf(r Reg) (*Variable, bool) {
    v, ok := self.vmap[r]
    return v, ok
}

func (self *FuncData) setError(err error) {
    if self.Error == nil {
        self.Error = err
    }
}

type FuncLayout struct {
    Ins   []IrNode
    Start map[int]int
    Block map[int]*BasicBlock
}

func (self *FuncLayout) String() string {
    ni := len(self.Ins)
    ns := len(self.Start)
    ss := make([]string, 0, ni + ns)

    /* print every instruction */
    for i, ins := range self.Ins {
        if bb, ok := self.Block[i]; !ok {
            ss = append(ss, fmt.Sprintf("%06x |     %s", i, ins))
        } else {
            ss = append(ss, fmt.Sprintf("%06x | bb_%d:", i, bb.Id), fmt.Sprintf("%06x |     %s", i, ins))
        }
    }

    /* join them together */
    return fmt.Sprintf(
        "FuncLayout {\n%s\n}",
        strings.Join(ss, "\n"),
    )
}

// Layout flattens the CFG into a linear FuncLayout, assigning every
// instruction a dense number. The terminator of each basic block is
// numbered like an ordinary instruction.
type Layout struct{}

func (self Layout) Apply(cfg *CFG) {
    fn := new(FuncLayout)
    fn.Start = make(map[int]int, cfg.MaxBlock())
    fn.Block = make(map[int]*BasicBlock, cfg.MaxBlock())

    /* serialize blocks in reverse post-order */
    for _, bb := range cfg.PostOrder().Reversed() {
        fn.Start[bb.Id] = len(fn.Ins)
        fn.Block[len(fn.Ins)] = bb
        fn.Ins = append(fn.Ins, bb.Ins...)
        fn.Ins = append(fn.Ins, bb.Term)
    }

    /* attach to the function */
    cfg.Func.Layout = fn
}
