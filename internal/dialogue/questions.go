package dialogue

import (
	"reviewlens/internal/model"
	"strings"
)

// Locale selects the language of the built-in questions and summaries
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleKorean  Locale = "ko"
)

// FinalQuestion is asked once the taxonomy and fallback questions are
// exhausted. It is the only question a session repeats.
const FinalQuestion = "Is there anything else you are weighing before you buy?"

// phrasebook holds the fixed texts of one locale
type phrasebook struct {
	final      string
	defaults   []string
	byCategory map[string][]string

	summary      string // %s is the comma separated factor keys
	emptySummary string
}

var phrasebooks = map[Locale]*phrasebook{
	LocaleEnglish: {
		final: FinalQuestion,
		defaults: []string{
			"In what situations will you mostly use this product?",
			"What bothered you most about similar products you have used?",
			"What matters most to you when buying this product?",
		},
		byCategory: map[string][]string{
			"mattress": {
				"Which position do you usually sleep in? (side/back/stomach)",
				"What is most uncomfortable about your current mattress?",
				"What matters most when buying a mattress? (support/softness/airflow/durability)",
			},
			"chair": {
				"How many hours a day do you sit and work?",
				"Where does your current chair bother you most? (lower back/neck/seat/armrests)",
				"What matters most when buying a chair? (cushion/backrest/height adjustment/durability)",
			},
			"bedding_cleaner": {
				"What kind of bedding will you clean most? (duvets/pillows/mattress)",
				"Do you have allergies or asthma?",
				"How often do you plan to clean?",
			},
			"bedding_robot": {
				"What is the space around your bed like? (clearance/obstacles)",
				"Are you sensitive to noise?",
				"What matters most in cleaning automation? (suction/battery/noise)",
			},
			"bookshelf": {
				"Where will you put it? (living room/bedroom/study)",
				"What will you mostly store? (books/ornaments/documents)",
				"What matters most when buying a bookshelf? (capacity/design/stability/assembly)",
			},
			"coffee_machine": {
				"How many cups of coffee do you drink a day?",
				"Which coffee do you prefer? (espresso/americano/latte)",
				"What matters most when buying a coffee machine? (taste/convenience/cleaning/noise)",
			},
			"desk": {
				"What will you mostly do at the desk? (computer work/study/drawing)",
				"How much room do you have for the desk?",
				"What matters most when buying a desk? (size/storage/height adjustment/durability)",
			},
			"earbuds": {
				"When will you mostly use them? (commute/workout/work)",
				"Do earbuds tend to fall out of your ears?",
				"What matters most when buying earbuds? (sound/fit/battery/noise cancelling)",
			},
			"humidifier": {
				"How large is the room you want to humidify?",
				"Are you sensitive to noise, for example while sleeping?",
				"What matters most when buying a humidifier? (output/noise/easy cleaning/design)",
			},
			"induction": {
				"What do you cook most often? (stir-fry/stew/grill)",
				"Have you used an induction cooktop before?",
				"What matters most when buying an induction cooktop? (power/noise/cleaning/safety)",
			},
		},
		summary:      "Main regret factors: %s. Check these before buying.",
		emptySummary: "No clear regret factors yet. Compare recent reviews before buying.",
	},
	LocaleKorean: {
		final: "추가로 고려하시는 부분이 있나요?",
		defaults: []string{
			"이 제품을 주로 어떤 상황에서 사용하실 예정인가요?",
			"비슷한 제품을 쓰시면서 가장 불편했던 점은 무엇인가요?",
			"구매할 때 가장 중요하게 생각하시는 점은 무엇인가요?",
		},
		byCategory: map[string][]string{
			"mattress": {
				"주로 어떤 자세로 주무시나요? (옆으로/바로/엎드려)",
				"지금 쓰시는 매트리스에서 가장 불편한 점은 무엇인가요?",
				"매트리스 구매 시 가장 중요한 것은 무엇인가요? (지지력/푹신함/통기성/내구성)",
			},
			"chair": {
				"하루에 몇 시간 정도 앉아서 일하시나요?",
				"지금 쓰시는 의자에서 가장 불편한 부위는 어디인가요? (허리/목/좌판/팔걸이)",
				"의자 구매 시 가장 중요한 것은 무엇인가요? (쿠션/등받이/높이 조절/내구성)",
			},
			"bedding_cleaner": {
				"주로 어떤 침구를 청소하실 건가요? (이불/베개/매트리스)",
				"알레르기나 천식이 있으신가요?",
				"얼마나 자주 청소하실 계획인가요?",
			},
			"bedding_robot": {
				"침대 주변 공간은 어떤가요? (높이/장애물)",
				"소음에 민감하신 편인가요?",
				"청소 자동화에서 가장 중요한 것은 무엇인가요? (흡입력/배터리/소음)",
			},
			"bookshelf": {
				"어디에 두실 예정인가요? (거실/침실/서재)",
				"주로 무엇을 보관하실 건가요? (책/장식품/서류)",
				"책장 구매 시 가장 중요한 것은 무엇인가요? (수납력/디자인/안정성/조립)",
			},
			"coffee_machine": {
				"하루에 커피를 몇 잔 정도 드시나요?",
				"어떤 커피를 선호하시나요? (에스프레소/아메리카노/라떼)",
				"커피머신 구매 시 가장 중요한 것은 무엇인가요? (맛/편의성/세척/소음)",
			},
			"desk": {
				"책상에서 주로 무엇을 하실 건가요? (컴퓨터 작업/공부/그림)",
				"책상을 둘 공간은 어느 정도인가요?",
				"책상 구매 시 가장 중요한 것은 무엇인가요? (크기/수납/높이 조절/내구성)",
			},
			"earbuds": {
				"주로 언제 사용하실 건가요? (출퇴근/운동/업무)",
				"이어폰이 귀에서 잘 빠지는 편인가요?",
				"이어폰 구매 시 가장 중요한 것은 무엇인가요? (음질/착용감/배터리/노이즈캔슬링)",
			},
			"humidifier": {
				"가습하려는 공간은 어느 정도 크기인가요?",
				"수면 중 소음에 민감하신 편인가요?",
				"가습기 구매 시 가장 중요한 것은 무엇인가요? (가습량/소음/세척 편의/디자인)",
			},
			"induction": {
				"주로 어떤 요리를 하시나요? (볶음/찌개/구이)",
				"인덕션을 사용해 보신 적이 있나요?",
				"인덕션 구매 시 가장 중요한 것은 무엇인가요? (화력/소음/세척/안전)",
			},
		},
		summary:      "주요 후회 요인: %s. 구매 전 이 요인들을 꼭 확인하세요.",
		emptySummary: "아직 뚜렷한 후회 요인이 없습니다. 구매 전 최근 리뷰를 비교해 보세요.",
	},
}

// bookFor returns the phrasebook of a locale, English when unknown
func bookFor(l Locale) *phrasebook {
	if b, ok := phrasebooks[l]; ok {
		return b
	}
	return phrasebooks[LocaleEnglish]
}

// ValidLocale reports whether built-in texts exist for l
func ValidLocale(l Locale) bool {
	_, ok := phrasebooks[l]
	return ok
}

// FallbackQuestions returns the English fixed question list for a category
func FallbackQuestions(category string) []string {
	return FallbackQuestionsFor(LocaleEnglish, category)
}

// FallbackQuestionsFor returns the fixed question list for a category in a
// locale. Full category keys such as "furniture_chair" match on their
// product suffix.
func FallbackQuestionsFor(l Locale, category string) []string {
	b := bookFor(l)
	if qs, ok := b.byCategory[category]; ok {
		return qs
	}
	for suffix, qs := range b.byCategory {
		if strings.HasSuffix(category, "_"+suffix) {
			return qs
		}
	}
	return b.defaults
}

// pickedQuestion is the question chosen for a turn
type pickedQuestion struct {
	text       string
	id         *int
	answerType model.AnswerType
	choices    []string
}

func fromQuestion(q *model.Question) pickedQuestion {
	id := q.ID
	at := q.AnswerType
	if at == "" {
		at = model.AnswerNoChoice
	}
	var choices []string
	if at != model.AnswerNoChoice && len(q.Choices) > 0 {
		choices = append([]string(nil), q.Choices...)
	}
	return pickedQuestion{text: q.Text, id: &id, answerType: at, choices: choices}
}

// nextQuestion marks and returns the question for this turn. An explicit
// factor selection wins over the focus policy.
func (s *Session) nextQuestion(top []rankedFactor, selected string) pickedQuestion {
	if selected = strings.TrimSpace(selected); selected != "" {
		f := s.resolveFactor(selected, top)
		if f == nil {
			s.log.Warn("selected factor not found, using fallback question", "selected", selected)
			return s.fallbackQuestion()
		}
		if q := s.firstUnasked(map[int]bool{f.ID: true}); q != nil {
			return s.ask(q)
		}
		s.log.Debug("selected factor has no questions left", "factor", f.Key)
		return s.fallbackQuestion()
	}

	focusN := 1
	if s.turnCount <= s.policy.FocusTurnsThreshold {
		focusN = 2
	}
	focus := make(map[int]bool, focusN)
	for i := 0; i < len(top) && i < focusN; i++ {
		focus[s.factors[top[i].idx].ID] = true
	}
	if q := s.firstUnasked(focus); q != nil {
		return s.ask(q)
	}
	return s.fallbackQuestion()
}

// resolveFactor looks a selection up by key, then display name, then as a
// substring of a current top factor key.
func (s *Session) resolveFactor(selected string, top []rankedFactor) *model.Factor {
	if i, ok := s.byKey[selected]; ok {
		return &s.factors[i]
	}
	for i := range s.factors {
		if s.factors[i].DisplayName == selected {
			return &s.factors[i]
		}
	}
	for _, r := range top {
		if strings.Contains(s.factors[r.idx].Key, selected) {
			return &s.factors[r.idx]
		}
	}
	return nil
}

// firstUnasked returns the lowest-id question of the given factors that has
// not been asked yet. Questions are kept sorted by id.
func (s *Session) firstUnasked(factorIDs map[int]bool) *model.Question {
	for i := range s.questions {
		q := &s.questions[i]
		if !factorIDs[q.FactorID] {
			continue
		}
		if _, asked := s.asked[q.Text]; asked {
			continue
		}
		return q
	}
	return nil
}

func (s *Session) ask(q *model.Question) pickedQuestion {
	s.markAsked(q.Text)
	return fromQuestion(q)
}

func (s *Session) fallbackQuestion() pickedQuestion {
	for _, text := range s.fallback {
		if _, asked := s.asked[text]; !asked {
			s.markAsked(text)
			return pickedQuestion{text: text}
		}
	}
	final := bookFor(s.policy.Locale).final
	s.markAsked(final)
	return pickedQuestion{text: final}
}

func (s *Session) markAsked(text string) {
	if _, ok := s.asked[text]; ok {
		return
	}
	s.asked[text] = struct{}{}
	s.askedOrder = append(s.askedOrder, text)
}
