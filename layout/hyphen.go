package layout

// BasicHyphenator 是内置的启发式英文断字器：不查词典，只依据
// 元音/辅音模式给出保守断点。词首至少保留 2 个字符，词尾至少
// 保留 3 个字符；含非 ASCII 字母的词不做断字。
type BasicHyphenator struct{}

// Hyphenate 返回 word 内允许断字的位置下标（断点位于下标之前）。
func (BasicHyphenator) Hyphenate(word []rune) []int {
	n := len(word)
	if n < 5 {
		return nil
	}
	for _, r := range word {
		if !isASCIILetter(r) {
			return nil
		}
	}
	var pos []int
	for i := 2; i <= n-3; i++ {
		prev, cur := word[i-1], word[i]
		switch {
		case !isVowel(prev) && !isVowel(cur) && lowerASCII(prev) == lowerASCII(cur):
			// 双写辅音之间断开：let-ter
			pos = append(pos, i)
		case isVowel(prev) && !isVowel(cur) && isVowel(word[i+1]):
			// 元音-辅音-元音，断在辅音之前：pa-per
			pos = append(pos, i)
		}
	}
	return pos
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func lowerASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func isVowel(r rune) bool {
	switch lowerASCII(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
