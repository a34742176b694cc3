package evidence

import (
	"reviewlens/internal/model"
	"reviewlens/internal/scoring"
	"unicode/utf8"
)

// Cue vocabularies are matched as substrings of normalized text, like factor
// terms. Korean stems cover the collected marketplace reviews.
var (
	positiveCues = []string{
		"괜찮", "좋", "만족", "추천", "문제없", "이상없", "잘됨", "잘되",
		"조용", "무소음", "안시끄", "소음없", "냄새없", "연기없", "불편없", "안불편",
		"간편", "편하", "쉬움", "빠르", "튼튼", "견고", "안전", "깨끗",
		"good", "great", "love", "satisf", "recommend", "no problem", "no issue",
		"works well", "quiet", "silent", "easy", "fast", "sturdy", "solid", "safe", "clean",
	}
	negativeCues = []string{
		"불만", "별로", "실망", "후회", "비추", "문제", "고장", "a/s", "환불",
		"시끄", "소음", "냄새", "연기", "뜨거", "화상", "위험", "누수", "샘", "물샘",
		"번거", "귀찮", "청소", "관리", "곰팡", "세척", "부식", "녹", "때",
		"약함", "부족", "미흡", "안됨", "안되", "끊김", "오류",
		"bad", "disappoint", "regret", "refund", "return", "broke", "defect", "problem",
		"issue", "noisy", "loud", "smell", "leak", "burn", "hassle", "annoying", "mold",
		"rust", "weak", "error", "poor", "worse",
	}
	contrastCues = []string{
		"근데", "하지만", "다만", "그러나", "반면", "대신", "오히려", "그런데",
		" but ", "however", "though", "instead", "whereas", "on the other hand",
	}
)

// DefaultLabelWindow is the number of characters inspected on each side of
// the first factor term hit.
const DefaultLabelWindow = 30

// Classify labels a review's stance on a factor. Cues are read in a window
// around the first anchor hit (context terms stand in when the factor has no
// anchors). Contrast markers count anywhere in the text. A negation term
// without any cue means the concern was addressed.
func Classify(text string, f *model.Factor, window int) model.Label {
	if text == "" {
		return model.LabelNeutral
	}
	if window <= 0 {
		window = DefaultLabelWindow
	}
	nt := scoring.Normalize(text)

	terms := f.AnchorTerms
	if len(terms) == 0 {
		terms = f.ContextTerms
	}
	first := scoring.FirstIndex(nt, terms)
	if first < 0 {
		return classifyWhole(nt, f)
	}

	runes := []rune(nt)
	at := utf8.RuneCountInString(nt[:first])
	lo := max(0, at-window)
	hi := min(len(runes), at+window)
	local := string(runes[lo:hi])

	hasPos := scoring.ContainsAny(local, positiveCues)
	hasNeg := scoring.ContainsAny(local, negativeCues)
	hasContrast := scoring.ContainsAny(nt, contrastCues)
	hasNegation := scoring.ContainsAny(local, f.NegationTerms)

	switch {
	case hasPos && hasNeg:
		return model.LabelMixed
	case hasNeg:
		if hasNegation || hasContrast {
			return model.LabelMixed
		}
		return model.LabelNegative
	case hasPos, hasNegation:
		return model.LabelPositive
	}
	return model.LabelNeutral
}

func classifyWhole(nt string, f *model.Factor) model.Label {
	hasPos := scoring.ContainsAny(nt, positiveCues)
	hasNeg := scoring.ContainsAny(nt, negativeCues)
	switch {
	case hasPos && hasNeg:
		return model.LabelMixed
	case hasNeg:
		return model.LabelNegative
	case hasPos:
		return model.LabelPositive
	case scoring.ContainsAny(nt, f.NegationTerms):
		return model.LabelPositive
	}
	return model.LabelNeutral
}
