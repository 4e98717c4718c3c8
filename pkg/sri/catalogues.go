// Package sri contiene catálogos y reglas alineados a la Ficha Técnica de
// Comprobantes Electrónicos del SRI (Ecuador), esquema offline.
package sri

// =============================================================================
// Tabla 3 - Tipo de comprobante (codDoc)
// =============================================================================

const (
	DocFactura          = "01" // Factura
	DocNotaCredito      = "04" // Nota de crédito
	DocNotaDebito       = "05" // Nota de débito
	DocGuiaRemision     = "06" // Guía de remisión
	DocComprobRetencion = "07" // Comprobante de retención
)

// ValidDocumentTypeCodes códigos de comprobante soportados por el pipeline.
var ValidDocumentTypeCodes = map[string]bool{
	DocFactura: true, DocNotaCredito: true, DocNotaDebito: true,
	DocGuiaRemision: true, DocComprobRetencion: true,
}

// =============================================================================
// Tabla 6 - Tipo de identificación del comprador (tipoIdentificacionComprador)
// =============================================================================

const (
	IdentRUC             = "04" // RUC (13 dígitos)
	IdentCedula          = "05" // Cédula
	IdentPasaporte       = "06" // Pasaporte
	IdentConsumidorFinal = "07" // Venta a consumidor final
	IdentExterior        = "08" // Identificación del exterior
)

// ConsumidorFinalID identificación reservada para ventas a consumidor final.
// Si el comprador tiene esta identificación, el tipo emitido SIEMPRE es "07"
// sin importar el tipo registrado en ficha.
const ConsumidorFinalID = "9999999999999"

// =============================================================================
// Ambiente y tipo de emisión (infoTributaria)
// =============================================================================

const (
	AmbientePruebas    = "1"
	AmbienteProduccion = "2"

	EmisionNormal = "1"
)

// =============================================================================
// Tabla 16/17 - Impuestos (codigo) y tarifas de IVA (codigoPorcentaje)
// =============================================================================

const (
	ImpuestoIVA  = "2"
	ImpuestoICE  = "3"
	ImpuestoIRBP = "5"
)

const (
	TarifaIVA0     = "0" // 0%
	TarifaIVA12    = "2" // 12%
	TarifaIVA14    = "3" // 14%
	TarifaIVA15    = "4" // 15%
	TarifaNoObjeto = "6" // No objeto de impuesto
	TarifaExento   = "7" // Exento de IVA
)

// =============================================================================
// Estados devueltos por los web services del SRI
// =============================================================================

const (
	// Recepción
	EstadoRecibida = "RECIBIDA"
	EstadoDevuelta = "DEVUELTA"

	// Autorización
	EstadoAutorizado   = "AUTORIZADO"
	EstadoNoAutorizado = "NO AUTORIZADO"
	// EnProceso no lo devuelve el SRI como texto: es el estado sintetizado
	// cuando la consulta aún no tiene nodo <autorizacion>.
	EstadoEnProceso = "EN PROCESO"
	// EstadoErrorSRI estado sintetizado ante un SOAP Fault en la consulta de
	// autorización: el caller debe poder persistirlo sin try/catch.
	EstadoErrorSRI = "ERROR"
)

// Mensaje es una entrada de la lista de errores/advertencias que el SRI
// adjunta a un comprobante devuelto o no autorizado.
type Mensaje struct {
	Identificador        string `json:"identificador"`
	Mensaje              string `json:"mensaje"`
	InformacionAdicional string `json:"informacionAdicional"`
	Tipo                 string `json:"tipo"` // ERROR | ADVERTENCIA
}
