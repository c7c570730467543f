package scaffold

import "strings"

// Frame is one sentence frame offered to a student as a speaking or writing
// support. Pattern uses "___" for blanks and "{topic}" for the topic slot.
type Frame struct {
	Pattern   string `json:"pattern"`
	Example   string `json:"example"`
	Purpose   string `json:"purpose"`
	ELPALevel int    `json:"elpaLevel"`
}

// DefaultFrameCount bounds how many frames Frames returns when the caller
// does not ask for a specific count.
const DefaultFrameCount = 5

// catalogue holds the levelled frame templates. Level 1 is single-blank
// naming; level 5 is analytical construction.
var catalogue = map[int][]Frame{
	1: {
		{Pattern: "This is ___.", Example: "This is a plant.", Purpose: "naming"},
		{Pattern: "I see ___.", Example: "I see the sun.", Purpose: "observation"},
		{Pattern: "The {topic} is ___.", Example: "The plant is green.", Purpose: "description"},
		{Pattern: "I like ___.", Example: "I like animals.", Purpose: "preference"},
		{Pattern: "It is ___.", Example: "It is big.", Purpose: "description"},
	},
	2: {
		{Pattern: "The {topic} has ___ and ___.", Example: "The plant has roots and leaves.", Purpose: "description"},
		{Pattern: "I think ___ because ___.", Example: "I think it will grow because it has water.", Purpose: "opinion"},
		{Pattern: "First ___, then ___.", Example: "First the seed sprouts, then it grows.", Purpose: "sequencing"},
		{Pattern: "___ is different from ___.", Example: "A frog is different from a toad.", Purpose: "comparison"},
		{Pattern: "I can ___ when ___.", Example: "I can read when it is quiet.", Purpose: "condition"},
	},
	3: {
		{Pattern: "The {topic} is important because ___.", Example: "The water cycle is important because all living things need water.", Purpose: "explanation"},
		{Pattern: "One example of ___ is ___.", Example: "One example of matter is water.", Purpose: "exemplification"},
		{Pattern: "___ happens when ___.", Example: "Evaporation happens when water is heated.", Purpose: "cause and effect"},
		{Pattern: "Both ___ and ___ have ___.", Example: "Both plants and animals have cells.", Purpose: "comparison"},
		{Pattern: "In my opinion, ___ because ___.", Example: "In my opinion, recycling helps because it reduces waste.", Purpose: "opinion"},
	},
	4: {
		{Pattern: "Although ___, the {topic} still ___.", Example: "Although deserts are dry, the plants still survive.", Purpose: "concession"},
		{Pattern: "The evidence suggests that ___ because ___.", Example: "The evidence suggests that the climate is changing because temperatures keep rising.", Purpose: "argumentation"},
		{Pattern: "If ___ had not ___, then ___.", Example: "If the settlers had not arrived, then the region would look different.", Purpose: "hypothesis"},
		{Pattern: "___ affects ___ by ___.", Example: "Pollution affects rivers by reducing oxygen.", Purpose: "cause and effect"},
		{Pattern: "One similarity between ___ and ___ is ___.", Example: "One similarity between fractions and decimals is that both show parts of a whole.", Purpose: "comparison"},
	},
	5: {
		{Pattern: "While some argue that ___, the {topic} demonstrates ___.", Example: "While some argue that technology isolates us, the research demonstrates new forms of connection.", Purpose: "analysis"},
		{Pattern: "The significance of ___ lies in ___.", Example: "The significance of the experiment lies in its control of variables.", Purpose: "evaluation"},
		{Pattern: "Considering ___, it follows that ___.", Example: "Considering the data, it follows that the hypothesis holds.", Purpose: "inference"},
		{Pattern: "A critical factor in ___ is ___, which ___.", Example: "A critical factor in photosynthesis is light, which drives the reaction.", Purpose: "analysis"},
		{Pattern: "To synthesise, ___ and ___ together show ___.", Example: "To synthesise, the graphs and the field notes together show a warming trend.", Purpose: "synthesis"},
	},
}

// Frames returns up to count sentence frames for the topic at the given
// proficiency level. Levels outside [1, 5] fall back to the level-3
// catalogue; count values outside (0, DefaultFrameCount] fall back to the
// default.
func Frames(topic string, level, count int) []Frame {
	if level < 1 || level > 5 {
		level = 3
	}
	if count <= 0 || count > DefaultFrameCount {
		count = DefaultFrameCount
	}

	templates := catalogue[level]
	if count > len(templates) {
		count = len(templates)
	}
	frames := make([]Frame, 0, count)
	for _, t := range templates[:count] {
		t.ELPALevel = level
		if topic != "" {
			t.Pattern = strings.ReplaceAll(t.Pattern, "{topic}", topic)
		}
		frames = append(frames, t)
	}
	return frames
}
