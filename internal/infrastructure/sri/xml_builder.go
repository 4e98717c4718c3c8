package sri

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	domsri "github.com/jcalvopina/facturacion-sri/internal/domain/sri"
	pkgsri "github.com/jcalvopina/facturacion-sri/pkg/sri"
)

// Versión de esquema declarada en el atributo version del comprobante.
const esquemaVersion = "1.1.0"

// ComprobanteElementID valor del atributo id del elemento raíz; la Reference
// de la firma XAdES apunta a "#comprobante".
const ComprobanteElementID = "comprobante"

// XMLBuilderService construye el XML del comprobante (factura o nota de
// crédito) según el esquema offline del SRI, sin firma. La serialización es
// UTF-8 sin BOM, sin indentación y sin declaración XML: el firmador opera
// sobre estos bytes tal cual.
type XMLBuilderService struct {
	emisor   Emisor
	ambiente string
}

// NewXMLBuilderService crea el servicio con la identidad del emisor inyectada.
func NewXMLBuilderService(emisor Emisor, ambiente string) *XMLBuilderService {
	return &XMLBuilderService{emisor: emisor, ambiente: ambiente}
}

// ── Modelo XML ────────────────────────────────────────────────────────────────

type infoTributaria struct {
	Ambiente        string `xml:"ambiente"`
	TipoEmision     string `xml:"tipoEmision"`
	RazonSocial     string `xml:"razonSocial"`
	NombreComercial string `xml:"nombreComercial,omitempty"`
	RUC             string `xml:"ruc"`
	ClaveAcceso     string `xml:"claveAcceso"`
	CodDoc          string `xml:"codDoc"`
	Estab           string `xml:"estab"`
	PtoEmi          string `xml:"ptoEmi"`
	Secuencial      string `xml:"secuencial"`
	DirMatriz       string `xml:"dirMatriz"`
}

type totalImpuesto struct {
	Codigo           string `xml:"codigo"`
	CodigoPorcentaje string `xml:"codigoPorcentaje"`
	BaseImponible    string `xml:"baseImponible"`
	Valor            string `xml:"valor"`
}

type pago struct {
	FormaPago string `xml:"formaPago"`
	Total     string `xml:"total"`
}

type infoFactura struct {
	FechaEmision                string          `xml:"fechaEmision"`
	DirEstablecimiento          string          `xml:"dirEstablecimiento,omitempty"`
	ObligadoContabilidad        string          `xml:"obligadoContabilidad"`
	TipoIdentificacionComprador string          `xml:"tipoIdentificacionComprador"`
	RazonSocialComprador        string          `xml:"razonSocialComprador"`
	IdentificacionComprador     string          `xml:"identificacionComprador"`
	DireccionComprador          string          `xml:"direccionComprador,omitempty"`
	TotalSinImpuestos           string          `xml:"totalSinImpuestos"`
	TotalDescuento              string          `xml:"totalDescuento"`
	TotalConImpuestos           []totalImpuesto `xml:"totalConImpuestos>totalImpuesto"`
	Propina                     string          `xml:"propina"`
	ImporteTotal                string          `xml:"importeTotal"`
	Moneda                      string          `xml:"moneda"`
	Pagos                       []pago          `xml:"pagos>pago"`
}

type impuestoDetalle struct {
	Codigo           string `xml:"codigo"`
	CodigoPorcentaje string `xml:"codigoPorcentaje"`
	Tarifa           string `xml:"tarifa"`
	BaseImponible    string `xml:"baseImponible"`
	Valor            string `xml:"valor"`
}

type detalleXML struct {
	CodigoPrincipal        string            `xml:"codigoPrincipal,omitempty"`
	Descripcion            string            `xml:"descripcion"`
	Cantidad               string            `xml:"cantidad"`
	PrecioUnitario         string            `xml:"precioUnitario"`
	Descuento              string            `xml:"descuento"`
	PrecioTotalSinImpuesto string            `xml:"precioTotalSinImpuesto"`
	Impuestos              []impuestoDetalle `xml:"impuestos>impuesto"`
}

type facturaXML struct {
	XMLName        xml.Name       `xml:"factura"`
	ID             string         `xml:"id,attr"`
	Version        string         `xml:"version,attr"`
	InfoTributaria infoTributaria `xml:"infoTributaria"`
	InfoFactura    infoFactura    `xml:"infoFactura"`
	Detalles       []detalleXML   `xml:"detalles>detalle"`
}

type infoNotaCredito struct {
	FechaEmision                string          `xml:"fechaEmision"`
	DirEstablecimiento          string          `xml:"dirEstablecimiento,omitempty"`
	TipoIdentificacionComprador string          `xml:"tipoIdentificacionComprador"`
	RazonSocialComprador        string          `xml:"razonSocialComprador"`
	IdentificacionComprador     string          `xml:"identificacionComprador"`
	ObligadoContabilidad        string          `xml:"obligadoContabilidad"`
	CodDocModificado            string          `xml:"codDocModificado"`
	NumDocModificado            string          `xml:"numDocModificado"`
	FechaEmisionDocSustento     string          `xml:"fechaEmisionDocSustento"`
	TotalSinImpuestos           string          `xml:"totalSinImpuestos"`
	ValorModificacion           string          `xml:"valorModificacion"`
	Moneda                      string          `xml:"moneda"`
	TotalConImpuestos           []totalImpuesto `xml:"totalConImpuestos>totalImpuesto"`
	Motivo                      string          `xml:"motivo"`
}

type notaCreditoXML struct {
	XMLName         xml.Name        `xml:"notaCredito"`
	ID              string          `xml:"id,attr"`
	Version         string          `xml:"version,attr"`
	InfoTributaria  infoTributaria  `xml:"infoTributaria"`
	InfoNotaCredito infoNotaCredito `xml:"infoNotaCredito"`
	Detalles        []detalleXML    `xml:"detalles>detalle"`
}

// ── Build ─────────────────────────────────────────────────────────────────────

// Build genera los bytes del comprobante según su codDoc. claveAcceso ya debe
// estar asignada (el orquestador la genera antes de construir).
func (s *XMLBuilderService) Build(c *entity.Comprobante, claveAcceso string) ([]byte, error) {
	if err := domsri.ValidateComprobante(c); err != nil {
		return nil, err
	}
	if err := domsri.Validate(claveAcceso); err != nil {
		return nil, fmt.Errorf("sri: clave de acceso: %w", err)
	}

	switch c.TipoDocumento {
	case pkgsri.DocFactura:
		doc := s.buildFactura(c, claveAcceso)
		return xml.Marshal(doc)
	case pkgsri.DocNotaCredito:
		doc := s.buildNotaCredito(c, claveAcceso)
		return xml.Marshal(doc)
	default:
		return nil, fmt.Errorf("sri: codDoc no soportado por el generador: %q", c.TipoDocumento)
	}
}

func (s *XMLBuilderService) buildFactura(c *entity.Comprobante, claveAcceso string) *facturaXML {
	return &facturaXML{
		ID:             ComprobanteElementID,
		Version:        esquemaVersion,
		InfoTributaria: s.buildInfoTributaria(c, claveAcceso),
		InfoFactura: infoFactura{
			FechaEmision:                fechaLocal(c.FechaEmision),
			DirEstablecimiento:          NormalizeText(s.emisor.DirEstablecimiento),
			ObligadoContabilidad:        siNo(s.emisor.ObligadoContabilidad),
			TipoIdentificacionComprador: tipoIdentificacion(c),
			RazonSocialComprador:        NormalizeText(c.RazonSocialComprador),
			IdentificacionComprador:     c.IdentificacionComprador,
			DireccionComprador:          NormalizeText(c.DireccionComprador),
			TotalSinImpuestos:           formatDecimal(c.Subtotal),
			TotalDescuento:              formatDecimal(c.TotalDescuento),
			TotalConImpuestos:           agruparImpuestos(c.Detalles),
			Propina:                     formatDecimal(decimal.Zero),
			ImporteTotal:                formatDecimal(c.ImporteTotal),
			Moneda:                      "DOLAR",
			Pagos: []pago{{
				FormaPago: "01", // sin utilización del sistema financiero
				Total:     formatDecimal(c.ImporteTotal),
			}},
		},
		Detalles: buildDetalles(c.Detalles),
	}
}

func (s *XMLBuilderService) buildNotaCredito(c *entity.Comprobante, claveAcceso string) *notaCreditoXML {
	fechaSustento := ""
	if c.DocModificadoFecha != nil {
		fechaSustento = fechaLocal(*c.DocModificadoFecha)
	}
	return &notaCreditoXML{
		ID:             ComprobanteElementID,
		Version:        esquemaVersion,
		InfoTributaria: s.buildInfoTributaria(c, claveAcceso),
		InfoNotaCredito: infoNotaCredito{
			FechaEmision:                fechaLocal(c.FechaEmision),
			DirEstablecimiento:          NormalizeText(s.emisor.DirEstablecimiento),
			TipoIdentificacionComprador: tipoIdentificacion(c),
			RazonSocialComprador:        NormalizeText(c.RazonSocialComprador),
			IdentificacionComprador:     c.IdentificacionComprador,
			ObligadoContabilidad:        siNo(s.emisor.ObligadoContabilidad),
			CodDocModificado:            c.DocModificadoTipo,
			NumDocModificado:            c.DocModificadoNumero,
			FechaEmisionDocSustento:     fechaSustento,
			TotalSinImpuestos:           formatDecimal(c.Subtotal),
			ValorModificacion:           formatDecimal(c.ImporteTotal),
			Moneda:                      "DOLAR",
			TotalConImpuestos:           agruparImpuestos(c.Detalles),
			Motivo:                      NormalizeText(c.MotivoModificacion),
		},
		Detalles: buildDetalles(c.Detalles),
	}
}

func (s *XMLBuilderService) buildInfoTributaria(c *entity.Comprobante, claveAcceso string) infoTributaria {
	return infoTributaria{
		Ambiente:        s.ambiente,
		TipoEmision:     pkgsri.EmisionNormal,
		RazonSocial:     NormalizeText(s.emisor.RazonSocial),
		NombreComercial: NormalizeText(s.emisor.NombreComercial),
		RUC:             s.emisor.RUC,
		ClaveAcceso:     claveAcceso,
		CodDoc:          c.TipoDocumento,
		Estab:           c.Estab,
		PtoEmi:          c.PtoEmi,
		Secuencial:      entity.SecuencialFormateado(c.Secuencial),
		DirMatriz:       NormalizeText(s.emisor.DirMatriz),
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// agruparImpuestos agrupa los impuestos por línea en totales por
// (codigo, codigoPorcentaje), sumando bases y valores en orden de aparición.
func agruparImpuestos(detalles []entity.Detalle) []totalImpuesto {
	type clave struct{ codigo, porcentaje string }
	var orden []clave
	bases := map[clave]decimal.Decimal{}
	valores := map[clave]decimal.Decimal{}

	for _, d := range detalles {
		k := clave{d.CodigoImpuesto, d.CodigoPorcentaje}
		if _, ok := bases[k]; !ok {
			orden = append(orden, k)
		}
		bases[k] = bases[k].Add(d.PrecioTotal)
		valores[k] = valores[k].Add(d.ValorImpuesto)
	}

	out := make([]totalImpuesto, 0, len(orden))
	for _, k := range orden {
		out = append(out, totalImpuesto{
			Codigo:           k.codigo,
			CodigoPorcentaje: k.porcentaje,
			BaseImponible:    formatDecimal(bases[k]),
			Valor:            formatDecimal(valores[k]),
		})
	}
	return out
}

func buildDetalles(detalles []entity.Detalle) []detalleXML {
	out := make([]detalleXML, 0, len(detalles))
	for _, d := range detalles {
		out = append(out, detalleXML{
			CodigoPrincipal:        d.CodigoPrincipal,
			Descripcion:            NormalizeText(d.Descripcion),
			Cantidad:               formatDecimal(d.Cantidad),
			PrecioUnitario:         formatDecimal(d.PrecioUnitario),
			Descuento:              formatDecimal(d.Descuento),
			PrecioTotalSinImpuesto: formatDecimal(d.PrecioTotal),
			Impuestos: []impuestoDetalle{{
				Codigo:           d.CodigoImpuesto,
				CodigoPorcentaje: d.CodigoPorcentaje,
				Tarifa:           d.Tarifa.String(),
				BaseImponible:    formatDecimal(d.PrecioTotal),
				Valor:            formatDecimal(d.ValorImpuesto),
			}},
		})
	}
	return out
}

// tipoIdentificacion fuerza el tipo "07" (consumidor final) cuando la
// identificación es la reservada 9999999999999, sin importar el tipo en ficha.
func tipoIdentificacion(c *entity.Comprobante) string {
	if c.IdentificacionComprador == pkgsri.ConsumidorFinalID {
		return pkgsri.IdentConsumidorFinal
	}
	return c.TipoIdentificacionComprador
}

// formatDecimal formato invariante de montos y cantidades: dos decimales con
// punto, sin separador de miles. Cualquier desvío provoca rechazo en
// recepción, por eso no es configurable.
func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func siNo(b bool) string {
	if b {
		return "SI"
	}
	return "NO"
}

// fechaLocal convierte el instante UTC almacenado a hora civil del emisor y
// lo formatea dd/mm/aaaa. Fallback en tres niveles: zona canónica, alias y
// offset fijo -05:00; nunca falla la generación por zona horaria.
func fechaLocal(t time.Time) string {
	return t.In(zonaEmisor()).Format("02/01/2006")
}

var zonaFija = time.FixedZone("-05", -5*60*60)

func zonaEmisor() *time.Location {
	if loc, err := time.LoadLocation("America/Guayaquil"); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation("Etc/GMT+5"); err == nil {
		return loc
	}
	return zonaFija
}
