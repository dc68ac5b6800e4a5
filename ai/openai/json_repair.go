// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import "strings"

// repairJSON fixes the two mistakes small models make most often in JSON
// mode: a key missing its opening quote and a trailing comma before a
// closing bracket. Text inside string literals is never touched.
func repairJSON(s string) string {
	return stripTrailingCommas(quoteKeys(s))
}

// stripTrailingCommas drops commas that are directly followed, after
// whitespace, by '}' or ']'.
func stripTrailingCommas(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	for i, ch := range runes {
		if ch == '"' && !escaped(runes, i) {
			inString = !inString
		}
		if ch == ',' && !inString {
			j := skipSpace(runes, i+1)
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// quoteKeys turns `{clause": 1}` into `{"clause": 1}`. A bare word after
// '{' or ',' is only treated as a key when it ends in `":`.
func quoteKeys(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	for i := 0; i < len(runes); {
		ch := runes[i]
		if ch == '"' && !escaped(runes, i) {
			inString = !inString
		}
		b.WriteRune(ch)
		i++
		if inString || (ch != '{' && ch != ',') {
			continue
		}

		start := skipSpace(runes, i)
		b.WriteString(string(runes[i:start]))
		i = start

		end := i
		for end < len(runes) && isKeyRune(runes[end]) {
			end++
		}
		if end == i || !isLetter(runes[i]) {
			continue
		}
		if end+1 < len(runes) && runes[end] == '"' && runes[end+1] == ':' {
			// Emit the key with both quotes and step past the closing one
			b.WriteByte('"')
			b.WriteString(string(runes[i:end]))
			b.WriteByte('"')
			i = end + 1
			continue
		}
		b.WriteString(string(runes[i:end]))
		i = end
	}
	return b.String()
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && (runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' || runes[i] == '\r') {
		i++
	}
	return i
}

func escaped(runes []rune, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && runes[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isKeyRune(r rune) bool {
	return isLetter(r) || r == '_' || (r >= '0' && r <= '9')
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
