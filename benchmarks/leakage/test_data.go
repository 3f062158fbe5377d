// ABOUTME: Benchmark scenarios for anonymization leakage
// ABOUTME: Each document lists the personal details that must disappear and the content that must stay
package leakage

// Scenario is one benchmark document with its ground truth
type Scenario struct {
	ID          string
	Name        string
	Description string
	Document    string
	GroundTruth GroundTruth
}

// GroundTruth lists what the output must and must not contain
type GroundTruth struct {
	// Identifiers that MUST NOT appear in the output (names, places, dates, ages)
	Identifiers []string
	// Non-identifying words that MUST survive, showing the text was not gutted
	Preserved []string
	// Header lines that must appear unchanged
	Headers []string
}

// Result holds the scores for one scenario
type Result struct {
	ScenarioID       string                 `json:"scenario_id"`
	ScenarioName     string                 `json:"scenario_name"`
	LeakageRate      float64                `json:"leakage_rate"`
	PreservationRate float64                `json:"preservation_rate"`
	HeadersIntact    bool                   `json:"headers_intact"`
	FailedSections   []int                  `json:"failed_sections"`
	Status           string                 `json:"status"` // PASS or FAIL
	Details          map[string]interface{} `json:"details,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
}

// Scenarios returns every built-in scenario
func Scenarios() []Scenario {
	return []Scenario{
		ClinicalNote(),
		MeetingMinutes(),
		TravelJournal(),
	}
}

// ScenarioByID finds a built-in scenario
func ScenarioByID(id string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// ClinicalNote is a short medical record with a preamble and two sections
func ClinicalNote() Scenario {
	return Scenario{
		ID:          "clinical",
		Name:        "Clinical note",
		Description: "Patient names, ages, a city, and visit dates across sections",
		Document: `Patient record prepared for Dr. Okafor.
# Admission
Helen Marsh, aged 67, was admitted in Leeds on 3 March 2023 with chest pain.
# Discharge
Helen was discharged on 9 March 2023. Her son Peter will drive her home.`,
		GroundTruth: GroundTruth{
			Identifiers: []string{"Okafor", "Helen", "Marsh", "67", "Leeds", "3 March 2023", "9 March 2023", "Peter"},
			Preserved:   []string{"admitted", "chest pain", "discharged"},
			Headers:     []string{"# Admission", "# Discharge"},
		},
	}
}

// MeetingMinutes has several attendees and a follow-up date
func MeetingMinutes() Scenario {
	return Scenario{
		ID:          "minutes",
		Name:        "Meeting minutes",
		Description: "Attendee names and a location repeated in every section",
		Document: `# Attendees
Rosa Alvarez, Jonas Berg, and Mei Tanaka met in Rotterdam.
# Decisions
Jonas will draft the budget. Mei reviews it before Friday 14 June.
# Next meeting
Rosa hosts the next meeting in Rotterdam on 28 June.`,
		GroundTruth: GroundTruth{
			Identifiers: []string{"Rosa", "Alvarez", "Jonas", "Berg", "Mei", "Tanaka", "Rotterdam", "14 June", "28 June"},
			Preserved:   []string{"budget", "meeting"},
			Headers:     []string{"# Attendees", "# Decisions", "# Next meeting"},
		},
	}
}

// TravelJournal has no headers, so it runs as a single section
func TravelJournal() Scenario {
	return Scenario{
		ID:          "journal",
		Name:        "Travel journal",
		Description: "One unheaded section with names, places, years, and an age",
		Document: `In 2019 Carlos and his sister Lucia flew from Madrid to Lima.
Lucia turned 30 there and they hiked for four days.`,
		GroundTruth: GroundTruth{
			Identifiers: []string{"2019", "Carlos", "Lucia", "Madrid", "Lima", "30"},
			Preserved:   []string{"flew", "hiked"},
		},
	}
}
