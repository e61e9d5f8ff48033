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
    `os`
    `strings`

    `github.com/ajstarks/svgo`
)

// drawLiveRanges renders the function layout and every variable's live
// range into an SVG file, one column per variable. Debugging aid only.
func drawLiveRanges(fn string, fd *FuncData) {
    maxi := 0
    maxw := 0
    lay := fd.Layout

    /* widest instruction text */
    for _, v := range lay.Ins {
        s := v.String()
        s = strings.TrimSpace(strings.Split(s, "\n")[0])
        if len(s) > maxi {
            maxi = len(s)
        }
    }

    /* widest variable name */
    for _, v := range fd.Vars {
        if s := v.String(); len(s) > maxw {
            maxw = len(s)
        }
    }

    /* column geometry */
    insw := maxi * 9 + 120
    regw := (maxw + 1) * 8 + 16
    leni := len(lay.Ins)

    /* create the output file */
    fp, err := os.OpenFile(fn, os.O_RDWR | os.O_CREATE | os.O_TRUNC, 0644)
    if err != nil {
        panic(err)
    }

    /* canvas with a white backdrop */
    p := svg.New(fp)
    p.Start(len(fd.Vars) * regw + insw + 100, leni * 24 + 100)
    if _, err = fp.WriteString(`<rect width="100%" height="100%" fill="white" />` + "\n"); err != nil {
        panic(err)
    }

    /* draw the instructions, one per row */
    for i, v := range lay.Ins {
        h := 95 + i * 24
        s := strings.TrimSpace(strings.Split(v.String(), "\n")[0])
        if bb, ok := lay.Block[i]; ok {
            p.Text(16, 100 + i * 24, fmt.Sprintf("bb_%d", bb.Id), "fill:gray;font-size:16px;font-family:monospace")
        }
        p.Text(insw, 100 + i * 24, s, "fill:black;font-size:16px;font-family:monospace;text-anchor:end")
        p.Line(insw + 10, h, len(fd.Vars) * regw + insw + 50, h, "stroke:gray")
    }

    /* draw the live range segments, one column per variable */
    for i, v := range fd.Vars {
        x := insw + i * regw + 50
        p.Text(x, 70, v.String(), "fill:black;font-size:16px;font-family:monospace;text-anchor:middle")
        for _, seg := range v.live.p {
            y0 := 95 + seg.s * 24
            y1 := 95 + (seg.e - 1) * 24
            p.Line(x, y0, x, y1, "stroke:black;stroke-width:3")
            p.Circle(x, y0, 4, "fill:white;stroke:black;stroke-width:2")
            p.Circle(x, y1, 4, "fill:black;stroke:black;stroke-width:2")
        }
    }

    /* flush the file */
    p.End()
    if err = fp.Close(); err != nil {
        panic(err)
    }
}
