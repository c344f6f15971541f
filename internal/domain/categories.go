package domain

// Placeholder categories used when the source carries no category of its own.
const (
	DefaultExpenseCategory = "Otros"
	DefaultIncomeCategory  = "Ingresos"
)

// Categories is the closed set an extracted transaction may be filed under.
var Categories = []string{
	"Deporte",
	"Ropa",
	"Recreacional",
	"TC",
	"Cursos",
	"Supermercado",
	"Transporte",
	"Vacaciones",
	"Ahorros",
	"Salud",
	"Hogar",
	"Otros",
}

// IsKnownCategory reports whether name is one of Categories (exact match).
func IsKnownCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
