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

package opts

import (
    `os`
)

var (
    /* dump the final register assignment after every allocation */
    DebugRegAlloc = parseBool("PERMAFROST_DEBUG_REGALLOC")

    /* render the live ranges into an SVG file before allocation */
    LiveRangeSVG = os.Getenv("PERMAFROST_LIVERANGE_SVG")
)

func parseBool(key string) bool {
    switch os.Getenv(key) {
        case ""  : return false
        case "0" : return false
        default  : return true
    }
}
