package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de emisión electrónica SRI (Ecuador).
//
//	BORRADOR → PENDIENTE → GENERADO → ENVIADO_SRI → {AUTORIZADO | RECHAZADO}
//	ANULADO es alcanzable desde cualquier estado no anulado (acción de usuario).
//
// AUTORIZADO y RECHAZADO son terminales para el pipeline automático: un
// comprobante rechazado se corrige emitiendo uno nuevo, nunca mutando el
// artefacto rechazado.
const (
	EstadoBorrador   = "BORRADOR"
	EstadoPendiente  = "PENDIENTE"   // En proceso de generación/firma
	EstadoGenerado   = "GENERADO"    // XML generado y firmado, pendiente de envío
	EstadoEnviadoSRI = "ENVIADO_SRI" // RECIBIDA por el SRI, autorización pendiente
	EstadoAutorizado = "AUTORIZADO"
	EstadoRechazado  = "RECHAZADO" // DEVUELTA o NO AUTORIZADO
	EstadoAnulado    = "ANULADO"
)

// Comprobante es el agregado plano que recibe el pipeline: cabecera, comprador,
// detalles y totales ya calculados por el caller. El pipeline no navega grafos
// de persistencia; sólo muta Estado y los artefactos SRI.
type Comprobante struct {
	ID            string
	TipoDocumento string // codDoc: 01 factura, 04 nota de crédito
	Estab         string // establecimiento (3 dígitos)
	PtoEmi        string // punto de emisión (3 dígitos)
	Secuencial    int64  // consecutivo; se emite con padding a 9 dígitos
	FechaEmision  time.Time

	// Comprador
	TipoIdentificacionComprador string
	IdentificacionComprador     string
	RazonSocialComprador        string
	DireccionComprador          string
	EmailComprador              string

	// Referencia al documento modificado (sólo nota de crédito)
	DocModificadoTipo   string
	DocModificadoNumero string // estab-ptoEmi-secuencial del documento original
	DocModificadoFecha  *time.Time
	MotivoModificacion  string

	Detalles []Detalle

	// Totales calculados por el caller. Invariante: Subtotal - TotalDescuento
	// + TotalImpuestos == ImporteTotal dentro de la tolerancia de redondeo.
	Subtotal       decimal.Decimal
	TotalDescuento decimal.Decimal
	TotalImpuestos decimal.Decimal
	ImporteTotal   decimal.Decimal

	// Ciclo de vida y artefactos SRI (sólo los muta el orquestador).
	Estado             string
	ClaveAcceso        string // 49 dígitos, inmutable una vez asignada
	XMLGenerado        string
	XMLFirmado         string
	NumeroAutorizacion string
	FechaAutorizacion  *time.Time
	RespuestaSRI       string // texto crudo de la última respuesta del WS
	MensajesSRI        string // lista de mensajes del SRI serializada a JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Detalle es una línea del comprobante con su impuesto ya resuelto.
type Detalle struct {
	CodigoPrincipal  string
	Descripcion      string
	Cantidad         decimal.Decimal
	PrecioUnitario   decimal.Decimal
	Descuento        decimal.Decimal
	PrecioTotal      decimal.Decimal // base imponible de la línea (sin impuesto)
	CodigoImpuesto   string          // código de impuesto (2 = IVA)
	CodigoPorcentaje string          // tarifa (0, 2, 4, ...)
	Tarifa           decimal.Decimal // porcentaje (ej: 15)
	ValorImpuesto    decimal.Decimal
}

// EsTerminal indica si el estado no admite más acciones del pipeline automático.
func EsTerminal(estado string) bool {
	return estado == EstadoAutorizado || estado == EstadoRechazado || estado == EstadoAnulado
}

// NumeroCompleto devuelve estab-ptoEmi-secuencial tal como se imprime en el RIDE.
func (c *Comprobante) NumeroCompleto() string {
	return c.Estab + "-" + c.PtoEmi + "-" + SecuencialFormateado(c.Secuencial)
}

// SecuencialFormateado renderiza el secuencial con padding de ceros a 9
// dígitos. Asume un secuencial ya validado en el rango emitible (≤ 9 dígitos);
// la validación vive en el dominio sri, antes de generar clave o XML.
func SecuencialFormateado(secuencial int64) string {
	const width = 9
	s := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		s[i] = byte('0' + secuencial%10)
		secuencial /= 10
	}
	return string(s)
}
