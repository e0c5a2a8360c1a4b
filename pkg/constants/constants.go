package constants

// --- СТАТУСЫ ТИКЕТОВ ---
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusClosed     = "CLOSED"
)

// Финальные статусы
var FinalStatuses = []string{
	StatusClosed,
}

// Функция-проверка
func IsFinalStatus(code string) bool {
	for _, s := range FinalStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// --- ПРИОРИТЕТЫ ---
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// PriorityRank - порядок сортировки в очереди: меньше число, раньше очередь.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return -1
	}
}

func IsValidPriority(priority string) bool {
	return PriorityRank(priority) >= 0
}

// --- КАТЕГОРИИ ТИКЕТОВ ---
const (
	CategoryMedicalQuery = "MEDICAL_QUERY"
	CategoryAppointment  = "APPOINTMENT"
	CategoryPrescription = "PRESCRIPTION"
	CategoryTechnical    = "TECHNICAL"
	CategoryOther        = "OTHER"
)

// --- ИСХОДЫ ЗВОНКОВ (от телефонии) ---
const (
	CallOutcomeAnswered = "ANSWERED"
	CallOutcomeBusy     = "BUSY"
	CallOutcomeNoAnswer = "NO_ANSWER"
	CallOutcomeFailed   = "FAILED"
)
