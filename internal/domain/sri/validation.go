// Package sri contiene validaciones de dominio previas a la generación del
// comprobante. Una validación fallida es ErrConstruccion: falla local del
// intento, nunca se envía al SRI.
package sri

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
)

// ValidateComprobante valida el agregado antes de construir el XML.
// Comprueba que existan detalles, que cantidades y totales sean coherentes y
// que la suma de bases e impuestos por línea cuadre con los totales de
// cabecera dentro de la tolerancia de redondeo a 2 decimales.
func ValidateComprobante(c *entity.Comprobante) error {
	if c == nil {
		return fmt.Errorf("%w: comprobante nulo", domain.ErrConstruccion)
	}
	var errs []error

	if len(c.Detalles) == 0 {
		errs = append(errs, fmt.Errorf("el comprobante debe tener al menos un detalle"))
	}
	if !c.ImporteTotal.IsPositive() {
		errs = append(errs, fmt.Errorf("importe total debe ser positivo: %s", c.ImporteTotal.String()))
	}
	if c.IdentificacionComprador == "" {
		errs = append(errs, fmt.Errorf("identificación del comprador es obligatoria"))
	}
	if c.Secuencial <= 0 || c.Secuencial > MaxSecuencial {
		errs = append(errs, fmt.Errorf("secuencial fuera del rango emitible [1, %d]: %d", MaxSecuencial, c.Secuencial))
	}

	var sumBase, sumImpuesto decimal.Decimal
	for i, d := range c.Detalles {
		if d.Cantidad.IsNegative() {
			errs = append(errs, fmt.Errorf("detalle %d: cantidad negativa (%s)", i+1, d.Cantidad.String()))
		}
		sumBase = sumBase.Add(d.PrecioTotal)
		sumImpuesto = sumImpuesto.Add(d.ValorImpuesto)
	}

	if len(c.Detalles) > 0 {
		if !c.Subtotal.Round(2).Equal(sumBase.Round(2)) {
			errs = append(errs, fmt.Errorf("subtotal (%s) no coincide con la suma de bases por línea (%s)",
				c.Subtotal.String(), sumBase.Round(2).String()))
		}
		if !c.TotalImpuestos.Round(2).Equal(sumImpuesto.Round(2)) {
			errs = append(errs, fmt.Errorf("total de impuestos (%s) no coincide con la suma por línea (%s)",
				c.TotalImpuestos.String(), sumImpuesto.Round(2).String()))
		}
		// El subtotal ya es neto de descuentos por línea; totalDescuento es informativo.
		expected := c.Subtotal.Add(c.TotalImpuestos).Round(2)
		if !c.ImporteTotal.Round(2).Equal(expected) {
			errs = append(errs, fmt.Errorf("importe total (%s) no coincide con subtotal + impuestos (%s)",
				c.ImporteTotal.String(), expected.String()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrConstruccion}, errs...)...)
	}
	return nil
}
