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
    `github.com/davecgh/go-spew/spew`
)

// dumpRegAllocState dumps the final register assignment of every
// variable. Debugging aid only.
func dumpRegAllocState(fd *FuncData) {
    rm := make(map[string]string, len(fd.Vars))

    /* map every variable to its assignment */
    for _, v := range fd.Vars {
        if r, ok := v.FinalReg(); ok {
            rm[v.String()] = ArchRegNames[ArchRegs[r]]
        } else {
            rm[v.String()] = "(spilled)"
        }
    }

    /* deterministic dump order */
    spew.Config.SortKeys = true
    spew.Config.DisablePointerMethods = true
    spew.Dump(rm)
}
