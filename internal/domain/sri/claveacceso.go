// Package sri: generación y validación de la clave de acceso (Ficha Técnica
// SRI, esquema offline). La clave es el identificador global de 49 dígitos de
// un comprobante emitido: 48 dígitos de datos más un dígito verificador
// módulo 11. Es inmutable una vez asignada a un comprobante.

package sri

import (
	"fmt"
	"time"

	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	pkgsri "github.com/jcalvopina/facturacion-sri/pkg/sri"
)

// ClaveAccesoParams contiene los datos para armar la clave en el orden exigido:
// fecha (ddmmaaaa) + codDoc + RUC + ambiente + serie + secuencial +
// código numérico + tipo de emisión + dígito verificador.
type ClaveAccesoParams struct {
	FechaEmision   time.Time // fecha local del emisor
	TipoDocumento  string    // codDoc (2 dígitos)
	RUC            string    // 13 dígitos
	Ambiente       string    // 1 pruebas, 2 producción
	Estab          string    // 3 dígitos
	PtoEmi         string    // 3 dígitos
	Secuencial     int64
	CodigoNumerico string // 8 dígitos; libre elección del emisor
}

// MaxSecuencial tope del secuencial emitible: el campo de la clave tiene 9
// dígitos fijos. Un valor mayor se truncaría al formatear y dos secuenciales
// distintos colisionarían en la misma clave con dígito verificador válido.
const MaxSecuencial = 999_999_999

// ClaveAccesoService genera y valida claves de acceso.
type ClaveAccesoService struct{}

// NewClaveAccesoService crea el servicio.
func NewClaveAccesoService() *ClaveAccesoService {
	return &ClaveAccesoService{}
}

// Generate arma la clave de acceso de 49 dígitos con su dígito verificador.
func (s *ClaveAccesoService) Generate(p *ClaveAccesoParams) (string, error) {
	if p == nil {
		return "", fmt.Errorf("sri: ClaveAccesoParams es obligatorio")
	}
	if len(p.RUC) != 13 {
		return "", fmt.Errorf("sri: RUC debe tener 13 dígitos, tiene %d", len(p.RUC))
	}
	if len(p.TipoDocumento) != 2 {
		return "", fmt.Errorf("sri: codDoc debe tener 2 dígitos: %q", p.TipoDocumento)
	}
	if p.Ambiente != pkgsri.AmbientePruebas && p.Ambiente != pkgsri.AmbienteProduccion {
		return "", fmt.Errorf("sri: ambiente desconocido %q", p.Ambiente)
	}
	if len(p.Estab) != 3 || len(p.PtoEmi) != 3 {
		return "", fmt.Errorf("sri: estab y ptoEmi deben tener 3 dígitos (%q, %q)", p.Estab, p.PtoEmi)
	}
	if p.Secuencial <= 0 || p.Secuencial > MaxSecuencial {
		return "", fmt.Errorf("sri: secuencial fuera del rango [1, %d]: %d", MaxSecuencial, p.Secuencial)
	}
	codigo := p.CodigoNumerico
	if codigo == "" {
		// Derivado del secuencial para mantener la generación determinista;
		// el emisor puede inyectar uno aleatorio si lo prefiere.
		codigo = fmt.Sprintf("%08d", p.Secuencial%100000000)
	}
	if len(codigo) != 8 || !soloDigitos(codigo) {
		return "", fmt.Errorf("sri: código numérico debe tener 8 dígitos: %q", codigo)
	}

	base := p.FechaEmision.Format("02012006") +
		p.TipoDocumento +
		p.RUC +
		p.Ambiente +
		p.Estab + p.PtoEmi +
		entity.SecuencialFormateado(p.Secuencial) +
		codigo +
		pkgsri.EmisionNormal
	if len(base) != 48 || !soloDigitos(base) {
		return "", fmt.Errorf("sri: base de clave de acceso inválida (%d dígitos)", len(base))
	}

	dv, err := ComputeDigitoVerificador(base)
	if err != nil {
		return "", err
	}
	return base + string(dv), nil
}

// ComputeDigitoVerificador calcula el dígito módulo 11 de los 48 dígitos base.
// Pesos 2..7 cíclicos desde el dígito más a la derecha; 11 - (suma mod 11),
// con 11 → 0 y 10 → 1 por convención del SRI.
func ComputeDigitoVerificador(base string) (byte, error) {
	if !soloDigitos(base) || base == "" {
		return 0, fmt.Errorf("sri: la base debe contener sólo dígitos")
	}
	sum := 0
	weight := 2
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	dv := 11 - (sum % 11)
	switch dv {
	case 11:
		dv = 0
	case 10:
		dv = 1
	}
	return byte('0' + dv), nil
}

// Validate verifica largo, contenido numérico y dígito verificador de una clave.
func Validate(clave string) error {
	if len(clave) != 49 {
		return fmt.Errorf("sri: clave de acceso debe tener 49 dígitos, tiene %d", len(clave))
	}
	if !soloDigitos(clave) {
		return fmt.Errorf("sri: clave de acceso contiene caracteres no numéricos")
	}
	dv, err := ComputeDigitoVerificador(clave[:48])
	if err != nil {
		return err
	}
	if clave[48] != dv {
		return fmt.Errorf("sri: dígito verificador inválido: esperado %c, recibido %c", dv, clave[48])
	}
	return nil
}

func soloDigitos(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
