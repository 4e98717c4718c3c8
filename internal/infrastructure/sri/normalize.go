package sri

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// quitaDiacriticos descompone a NFD, elimina las marcas diacríticas (Mn) y
// recompone a NFC. El juego de caracteres aceptado por el esquema del SRI es
// heredado de latin básico; tildes y diéresis provocan rechazo en recepción.
var quitaDiacriticos = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText elimina diacríticos de un texto libre (razones sociales,
// direcciones, descripciones). La entrada vacía pasa sin cambios; si la
// transformación falla se conserva el texto original antes que abortar la
// generación del comprobante.
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	out, _, err := transform.String(quitaDiacriticos, s)
	if err != nil {
		return s
	}
	return out
}
