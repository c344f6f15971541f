package extraction

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finko-backend/internal/domain"
)

const outputContract = `Devuelve un objeto JSON con la forma {"transactions": [...]}.
Para cada transacción:
- merchant: nombre del comercio o descripción de la transacción
- amount: monto como número (sin símbolos de moneda ni separadores de miles)
- date: fecha en formato YYYY-MM-DD (si no está clara, usa la fecha del correo)
- category: clasifica en UNA de estas categorías: %s
- type: "expense" para gastos/cargos, "income" para abonos/depósitos

Si no encuentras transacciones válidas, devuelve {"transactions": []}.`

// systemPrompt uses the bank's own instructions when both the bank name and
// instructions are known, and a generic Banco de Chile prompt otherwise.
func systemPrompt(bankName, instructions string) string {
	contract := fmt.Sprintf(outputContract, strings.Join(domain.Categories, ", "))

	bankName = strings.TrimSpace(bankName)
	instructions = strings.TrimSpace(instructions)
	if bankName != "" && instructions != "" {
		return "Eres un asistente que extrae transacciones bancarias del contenido de correos electrónicos de " +
			bankName + ".\n\n" + instructions + "\n\n" + contract
	}

	return "Eres un asistente que extrae transacciones bancarias del contenido de correos electrónicos del Banco de Chile.\n\n" +
		"Extrae TODAS las transacciones del correo.\n\n" + contract
}

func userPrompt(body, emailDate string) string {
	if emailDate = strings.TrimSpace(emailDate); emailDate != "" {
		return "Fecha del correo: " + emailDate + "\n\nContenido del correo:\n" + body
	}
	return "Contenido del correo:\n" + body
}
