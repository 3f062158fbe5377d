// ABOUTME: FewShotExample is a demonstration pair steering the model's output style
// ABOUTME: Ships the built-in default examples and instruction used when none are configured
package models

// DefaultInstruction is the instruction preamble placed before the examples
const DefaultInstruction = "Replace all names, places, dates, and ages in the following text with ***. " +
	"Respond only with the modified text, no explanations."

// FewShotExample pairs an original text with its de-identified version
type FewShotExample struct {
	Original     string `json:"original" yaml:"original"`
	Deidentified string `json:"deidentified" yaml:"deidentified"`
}

// DefaultExamples returns a fresh copy of the built-in example set
func DefaultExamples() []FewShotExample {
	return []FewShotExample{
		{
			Original:     "Sarah and John visited New York on July 4th, 2021. Sarah was 25.",
			Deidentified: "*** and *** visited *** on ***, ***. *** was ***.",
		},
		{
			Original:     "Dr. Ahmed treated Emily in Boston when she was 30, back in 2015.",
			Deidentified: "*** treated *** in *** when she was ***, back in ***.",
		},
		{
			Original:     "Michael and Anna celebrated in Paris in June 2020, Michael turned 40.",
			Deidentified: "*** and *** celebrated in *** in ***, *** turned ***.",
		},
	}
}

// PromptSettings is the user-editable configuration read at the start of every run
type PromptSettings struct {
	Instruction string           `json:"instruction" yaml:"instruction"`
	Examples    []FewShotExample `json:"examples" yaml:"examples"`
}

// DefaultPromptSettings returns the built-in instruction and examples
func DefaultPromptSettings() PromptSettings {
	return PromptSettings{
		Instruction: DefaultInstruction,
		Examples:    DefaultExamples(),
	}
}

// IsDefault reports whether the settings match the built-in instruction and examples
func (s PromptSettings) IsDefault() bool {
	def := DefaultPromptSettings()
	if s.Instruction != def.Instruction || len(s.Examples) != len(def.Examples) {
		return false
	}
	for i := range s.Examples {
		if s.Examples[i] != def.Examples[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so a running pipeline never shares the caller's slice
func (s PromptSettings) Clone() PromptSettings {
	examples := make([]FewShotExample, len(s.Examples))
	copy(examples, s.Examples)
	return PromptSettings{
		Instruction: s.Instruction,
		Examples:    examples,
	}
}
