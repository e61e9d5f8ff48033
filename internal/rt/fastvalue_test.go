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

package rt

import (
    `testing`
    `unsafe`

    `github.com/stretchr/testify/require`
)

func TestFastValue_BytesFrom(t *testing.T) {
    buf := []byte { 0x48, 0x89, 0xd8, 0xc3 }
    ptr := unsafe.Pointer(&buf[0])
    ret := BytesFrom(ptr, 4, 4)
    require.Equal(t, buf, ret)
    require.Equal(t, ptr, unsafe.Pointer(&ret[0]))
}

func TestFastValue_FuncAddr(t *testing.T) {
    require.NotNil(t, FuncAddr(TestFastValue_FuncAddr))
    require.Panics(t, func() { FuncAddr(42) })
}
