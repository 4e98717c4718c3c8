package sri_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	domsri "github.com/jcalvopina/facturacion-sri/internal/domain/sri"
	infrasri "github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri"
)

// ──────────────────────────────────────────────────────────────────────────────
// Generación del XML de comprobantes (esquema offline SRI, versión 1.1.0).
// Los montos siempre van con dos decimales y punto; fechas dd/mm/aaaa en hora
// civil del emisor (-05:00).
// ──────────────────────────────────────────────────────────────────────────────

func buildEmisorPrueba() infrasri.Emisor {
	return infrasri.Emisor{
		RUC:                  "1790012345001",
		RazonSocial:          "Comercial Andina S.A.",
		NombreComercial:      "Andina",
		DirMatriz:            "Av. Amazonas N12-34, Quito",
		DirEstablecimiento:   "Av. Amazonas N12-34, Quito",
		Estab:                "001",
		PtoEmi:               "002",
		ObligadoContabilidad: true,
	}
}

// buildFacturaPrueba arma una factura coherente: 2 × 10.00 con IVA 15%.
func buildFacturaPrueba() *entity.Comprobante {
	return &entity.Comprobante{
		ID:            "b6a7f3f0-0000-0000-0000-000000000001",
		TipoDocumento: "01",
		Estab:         "001",
		PtoEmi:        "002",
		Secuencial:    123,
		// 03:00 UTC = 22:00 del día anterior en -05:00
		FechaEmision:                time.Date(2026, 8, 15, 3, 0, 0, 0, time.UTC),
		TipoIdentificacionComprador: "05",
		IdentificacionComprador:     "1712345678",
		RazonSocialComprador:        "José Ñandú",
		DireccionComprador:          "Calle Única 123",
		Detalles: []entity.Detalle{
			{
				CodigoPrincipal:  "PROD-001",
				Descripcion:      "Cajas de cartón",
				Cantidad:         decimal.NewFromInt(2),
				PrecioUnitario:   decimal.NewFromFloat(10.00),
				Descuento:        decimal.Zero,
				PrecioTotal:      decimal.NewFromFloat(20.00),
				CodigoImpuesto:   "2",
				CodigoPorcentaje: "4",
				Tarifa:           decimal.NewFromInt(15),
				ValorImpuesto:    decimal.NewFromFloat(3.00),
			},
		},
		Subtotal:       decimal.NewFromFloat(20.00),
		TotalDescuento: decimal.Zero,
		TotalImpuestos: decimal.NewFromFloat(3.00),
		ImporteTotal:   decimal.NewFromFloat(23.00),
	}
}

func claveDePrueba(t *testing.T, c *entity.Comprobante) string {
	t.Helper()
	clave, err := domsri.NewClaveAccesoService().Generate(&domsri.ClaveAccesoParams{
		FechaEmision:  c.FechaEmision,
		TipoDocumento: c.TipoDocumento,
		RUC:           "1790012345001",
		Ambiente:      "1",
		Estab:         c.Estab,
		PtoEmi:        c.PtoEmi,
		Secuencial:    c.Secuencial,
	})
	require.NoError(t, err)
	return clave
}

func TestBuild_FacturaCompleta(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()
	clave := claveDePrueba(t, c)

	out, err := builder.Build(c, clave)
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, `<factura id="comprobante" version="1.1.0">`)
	assert.Contains(t, xml, "<ambiente>1</ambiente>")
	assert.Contains(t, xml, "<tipoEmision>1</tipoEmision>")
	assert.Contains(t, xml, "<ruc>1790012345001</ruc>")
	assert.Contains(t, xml, "<claveAcceso>"+clave+"</claveAcceso>")
	assert.Contains(t, xml, "<secuencial>000000123</secuencial>")
	assert.Contains(t, xml, "<obligadoContabilidad>SI</obligadoContabilidad>")

	// Montos con dos decimales exactos
	assert.Contains(t, xml, "<totalSinImpuestos>20.00</totalSinImpuestos>")
	assert.Contains(t, xml, "<importeTotal>23.00</importeTotal>")
	assert.Contains(t, xml, "<cantidad>2.00</cantidad>")
	assert.Contains(t, xml, "<precioUnitario>10.00</precioUnitario>")
	assert.Contains(t, xml, "<valor>3.00</valor>")

	// Sin declaración XML ni indentación: el firmador opera sobre estos bytes
	assert.False(t, strings.HasPrefix(xml, "<?xml"))
	assert.NotContains(t, xml, "\n")
}

// TestBuild_FechaEnHoraCivilDelEmisor verifica que un instante UTC de
// madrugada cae en el día anterior en hora de Ecuador (-05:00).
func TestBuild_FechaEnHoraCivilDelEmisor(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()

	out, err := builder.Build(c, claveDePrueba(t, c))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<fechaEmision>14/08/2026</fechaEmision>",
		"las 03:00 UTC del 15 son las 22:00 del 14 en hora del emisor")
}

// TestBuild_SinDiacriticos verifica que los textos se transliteran a ASCII:
// el SRI rechaza comprobantes con caracteres fuera del rango permitido.
func TestBuild_SinDiacriticos(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()

	out, err := builder.Build(c, claveDePrueba(t, c))
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, "<razonSocialComprador>Jose Nandu</razonSocialComprador>")
	assert.Contains(t, xml, "<direccionComprador>Calle Unica 123</direccionComprador>")
	assert.Contains(t, xml, "<descripcion>Cajas de carton</descripcion>")
}

// TestBuild_ConsumidorFinal verifica el forzado del tipo de identificación 07
// cuando la identificación es la reservada de consumidor final.
func TestBuild_ConsumidorFinal(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()
	c.TipoIdentificacionComprador = "05" // cédula en ficha, debe ignorarse
	c.IdentificacionComprador = "9999999999999"
	c.RazonSocialComprador = "CONSUMIDOR FINAL"

	out, err := builder.Build(c, claveDePrueba(t, c))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<tipoIdentificacionComprador>07</tipoIdentificacionComprador>")
}

// TestBuild_AgrupaImpuestosPorTarifa verifica que totalConImpuestos agrupa por
// (código, códigoPorcentaje) sumando bases y valores, en orden de aparición.
func TestBuild_AgrupaImpuestosPorTarifa(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()
	c.Detalles = append(c.Detalles,
		entity.Detalle{
			CodigoPrincipal:  "PROD-002",
			Descripcion:      "Mas cajas",
			Cantidad:         decimal.NewFromInt(1),
			PrecioUnitario:   decimal.NewFromFloat(5.00),
			PrecioTotal:      decimal.NewFromFloat(5.00),
			CodigoImpuesto:   "2",
			CodigoPorcentaje: "4",
			Tarifa:           decimal.NewFromInt(15),
			ValorImpuesto:    decimal.NewFromFloat(0.75),
		},
		entity.Detalle{
			CodigoPrincipal:  "LIBRO-001",
			Descripcion:      "Libro",
			Cantidad:         decimal.NewFromInt(1),
			PrecioUnitario:   decimal.NewFromFloat(8.00),
			PrecioTotal:      decimal.NewFromFloat(8.00),
			CodigoImpuesto:   "2",
			CodigoPorcentaje: "0",
			Tarifa:           decimal.Zero,
			ValorImpuesto:    decimal.Zero,
		},
	)
	c.Subtotal = decimal.NewFromFloat(33.00)
	c.TotalImpuestos = decimal.NewFromFloat(3.75)
	c.ImporteTotal = decimal.NewFromFloat(36.75)

	out, err := builder.Build(c, claveDePrueba(t, c))
	require.NoError(t, err)
	xml := string(out)

	// IVA 15%: dos líneas agrupadas en un solo total
	grupo15 := "<totalImpuesto><codigo>2</codigo><codigoPorcentaje>4</codigoPorcentaje><baseImponible>25.00</baseImponible><valor>3.75</valor></totalImpuesto>"
	grupo0 := "<totalImpuesto><codigo>2</codigo><codigoPorcentaje>0</codigoPorcentaje><baseImponible>8.00</baseImponible><valor>0.00</valor></totalImpuesto>"
	assert.Contains(t, xml, grupo15)
	assert.Contains(t, xml, grupo0)
	assert.Less(t, strings.Index(xml, grupo15), strings.Index(xml, grupo0),
		"los grupos conservan el orden de aparición de las líneas")
}

func TestBuild_NotaCredito(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()
	c.TipoDocumento = "04"
	c.DocModificadoTipo = "01"
	c.DocModificadoNumero = "001-002-000000100"
	fecha := time.Date(2026, 7, 1, 17, 0, 0, 0, time.UTC)
	c.DocModificadoFecha = &fecha
	c.MotivoModificacion = "Devolución de mercadería"

	out, err := builder.Build(c, claveDePrueba(t, c))
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, `<notaCredito id="comprobante" version="1.1.0">`)
	assert.Contains(t, xml, "<codDoc>04</codDoc>")
	assert.Contains(t, xml, "<codDocModificado>01</codDocModificado>")
	assert.Contains(t, xml, "<numDocModificado>001-002-000000100</numDocModificado>")
	assert.Contains(t, xml, "<fechaEmisionDocSustento>01/07/2026</fechaEmisionDocSustento>")
	assert.Contains(t, xml, "<valorModificacion>23.00</valorModificacion>")
	assert.Contains(t, xml, "<motivo>Devolucion de mercaderia</motivo>")
}

// ── Errores ──────────────────────────────────────────────────────────────────

func TestBuild_ErrorSiCodDocNoSoportado(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()
	c.TipoDocumento = "03"

	clave := claveDePrueba(t, c)
	_, err := builder.Build(c, clave)
	assert.Error(t, err)
}

func TestBuild_ErrorSiClaveInvalida(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()

	_, err := builder.Build(c, strings.Repeat("1", 49))
	assert.Error(t, err, "una clave con dígito verificador inválido se rechaza antes de construir")
}

func TestBuild_ErrorSiAgregadoInvalido(t *testing.T) {
	builder := infrasri.NewXMLBuilderService(buildEmisorPrueba(), "1")
	c := buildFacturaPrueba()
	clave := claveDePrueba(t, c)
	c.Detalles = nil

	_, err := builder.Build(c, clave)
	assert.Error(t, err)
}
