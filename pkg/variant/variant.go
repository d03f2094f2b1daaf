// Package variant provides the static catalog of agent variants a room
// worker can host, and the total resolution from a requested variant id to
// its descriptor.
package variant

// ID identifies one agent variant.
type ID string

const (
	Attorney          ID = "attorney"
	Arabic            ID = "arabic"
	ClickToTalk       ID = "click_to_talk"
	ArabicClickToTalk ID = "arabic_click_to_talk"
)

// Default is the variant a fresh room starts with.
const Default = Attorney

// Fallback is the variant an unrecognized switch request resolves to.
// Degrading to manual turn control is safer than leaving a room without
// an agent.
const Fallback = ClickToTalk

// TurnMode describes how a variant detects turn boundaries.
type TurnMode int

const (
	// TurnContinuous infers turn boundaries from voice activity detection.
	TurnContinuous TurnMode = iota
	// TurnManual requires explicit start/end signals from the user.
	TurnManual
)

// String returns the string representation of the turn mode.
func (m TurnMode) String() string {
	switch m {
	case TurnManual:
		return "manual"
	default:
		return "continuous"
	}
}

// Descriptor is the immutable configuration of one agent variant.
// Created once at process start; never mutated.
type Descriptor struct {
	ID       ID
	TurnMode TurnMode

	// DefaultAudioEnabled is the audio-input state right after a session
	// of this variant starts. True iff TurnMode is TurnContinuous: manual
	// variants stay muted until an explicit start-turn.
	DefaultAudioEnabled bool

	// Instructions is the system prompt for the variant.
	Instructions string

	// Greeting is spoken when a session of this variant starts.
	Greeting string

	// Voice and Language select the TTS voice; STTLanguage selects the
	// transcription language.
	Voice       string
	Language    string
	STTLanguage string
}

var catalog = map[ID]Descriptor{
	Attorney: {
		ID:                  Attorney,
		TurnMode:            TurnContinuous,
		DefaultAudioEnabled: true,
		Instructions: "Your name is Haakeem, an AI legal assistant. Your Company is Binfin8. " +
			"You should use short and concise responses, avoiding usage of unpronounceable punctuation. " +
			"Be concise and clear in your responses. Focus on legal guidance, document review, case analysis, " +
			"or whatever legal assistance they need. When users ask legal questions, provide clear, actionable advice.",
		Greeting:    "Hello! I'm Haakeem, your AI legal assistant. How can I assist you today?",
		Voice:       "en-US-DavisNeural",
		Language:    "en-US",
		STTLanguage: "en",
	},
	ClickToTalk: {
		ID:                  ClickToTalk,
		TurnMode:            TurnManual,
		DefaultAudioEnabled: false,
		Instructions: "Your name is Haakeem, an AI legal assistant. Your Company is Binfin8. " +
			"Users can speak for as long as they want without interruption. " +
			"You should use short and concise responses, avoiding usage of unpronounceable punctuation. " +
			"Provide thoughtful, comprehensive responses since users may share longer, detailed questions. " +
			"Focus on legal guidance, document review, case analysis, or whatever legal assistance they need. " +
			"Be thorough in your responses since this agent allows for more in-depth discussion. " +
			"Wait for the user to finish speaking completely before responding.",
		Greeting:    "Hello! I'm Haakeem, your AI legal assistant. How can I assist you today?",
		Voice:       "en-US-OnyxTurboMultilingualNeural",
		Language:    "en-US",
		STTLanguage: "en",
	},
	Arabic: {
		ID:                  Arabic,
		TurnMode:            TurnContinuous,
		DefaultAudioEnabled: true,
		Instructions: "اسمُك حَكيم، مساعد قانوني ذكي من Binfin8. " +
			"تتكلم دائمًا بلهجة المتحدث إن تعرّفت عليها من كلامه. إن لم تتعرّف على لهجته فاختر لهجة خليجية طبيعية وواضحة (سعودية/قطرية) بدل العربية الفصحى. " +
			"كن عمليًا ومباشرًا، وجّه المستخدم بخطوات واضحة ومبسطة، واطلب أي معلومات ناقصة بدقة. " +
			"عند الرد على الملفات أو الأسئلة، قدّم ملخصًا موجزًا ثم نقاطًا قانونية دقيقة وقابلة للتنفيذ. " +
			"تجنّب الجُمل الطويلة؛ اجعل الجمل قصيرة وسهلة الفهم، وابتعد عن المصطلحات المعقدة إن وُجد بديل شعبي واضح.",
		Greeting:    "السلام عليكم! أنا حَكيم، مساعدك القانوني. وش تبيني أساعدك فيه اليوم؟",
		Voice:       "ar-OM-AbdullahNeural",
		Language:    "ar-OM",
		STTLanguage: "ar-SA",
	},
	ArabicClickToTalk: {
		ID:                  ArabicClickToTalk,
		TurnMode:            TurnManual,
		DefaultAudioEnabled: false,
		Instructions: "اسمُك حَكيم، مساعد قانوني ذكي من Binfin8. " +
			"يتحدث المستخدم بقدر ما يشاء دون مقاطعة، فانتظر حتى ينتهي تمامًا قبل الرد. " +
			"قدّم إجابات عملية ومباشرة بخطوات واضحة ومبسطة، واطلب أي معلومات ناقصة بدقة.",
		Greeting:    "السلام عليكم! أنا حَكيم، مساعدك القانوني. وش تبيني أساعدك فيه اليوم؟",
		Voice:       "ar-OM-AbdullahNeural",
		Language:    "ar-OM",
		STTLanguage: "ar-SA",
	},
}

// Resolve returns the descriptor for the requested id. It is a total
// function: unknown ids resolve to the Fallback descriptor so a malformed
// switch command degrades instead of erroring.
func Resolve(id ID) Descriptor {
	if d, ok := catalog[id]; ok {
		return d
	}
	return catalog[Fallback]
}

// IDs returns all registered variant ids.
func IDs() []ID {
	return []ID{Attorney, Arabic, ClickToTalk, ArabicClickToTalk}
}
