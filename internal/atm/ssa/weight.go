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
    `math`
    `strconv`
)

// RegWeight is the spill priority of a live range. Zero marks a value
// that must stay on the stack, Inf marks a value that must be placed
// in a register. Addition saturates at Inf.
type RegWeight uint32

const (
    WeightZero RegWeight = 0
    WeightInf  RegWeight = math.MaxUint32
)

func (self RegWeight) IsInf() bool {
    return self == WeightInf
}

func (self RegWeight) IsZero() bool {
    return self == WeightZero
}

func (self RegWeight) Add(dw RegWeight) RegWeight {
    if s := uint64(self) + uint64(dw); s >= uint64(WeightInf) {
        return WeightInf
    } else {
        return RegWeight(s)
    }
}

func (self RegWeight) Less(other RegWeight) bool {
    return self < other
}

func (self RegWeight) String() string {
    if self.IsInf() {
        return "Inf"
    } else {
        return strconv.FormatUint(uint64(self), 10)
    }
}
