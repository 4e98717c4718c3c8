// emisor registra un comprobante en borrador desde un archivo JSON y ejecuta
// el ciclo de emisión completo contra el SRI (generar, firmar, enviar,
// autorizar).
//
// Uso: go run ./cmd/emisor -file comprobante.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcalvopina/facturacion-sri/internal/application/billing"
	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	"github.com/jcalvopina/facturacion-sri/internal/domain/repository"
	"github.com/jcalvopina/facturacion-sri/internal/infrastructure/postgres"
	infrasri "github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri"
	"github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri/signer"
	"github.com/jcalvopina/facturacion-sri/pkg/config"
	"github.com/jcalvopina/facturacion-sri/pkg/logger"
	pkgsri "github.com/jcalvopina/facturacion-sri/pkg/sri"
)

// comprobanteInput es el formato del archivo JSON de entrada. Los totales los
// calcula y valida el pipeline contra las líneas; aquí solo se transcriben.
type comprobanteInput struct {
	TipoDocumento string    `json:"tipo_documento"` // 01 factura, 04 nota de crédito
	Secuencial    int64     `json:"secuencial"`
	FechaEmision  time.Time `json:"fecha_emision"`

	Comprador struct {
		TipoIdentificacion string `json:"tipo_identificacion"`
		Identificacion     string `json:"identificacion"`
		RazonSocial        string `json:"razon_social"`
		Direccion          string `json:"direccion"`
		Email              string `json:"email"`
	} `json:"comprador"`

	DocModificado *struct {
		Tipo   string    `json:"tipo"`
		Numero string    `json:"numero"`
		Fecha  time.Time `json:"fecha"`
		Motivo string    `json:"motivo"`
	} `json:"doc_modificado,omitempty"`

	Detalles []struct {
		CodigoPrincipal  string          `json:"codigo_principal"`
		Descripcion      string          `json:"descripcion"`
		Cantidad         decimal.Decimal `json:"cantidad"`
		PrecioUnitario   decimal.Decimal `json:"precio_unitario"`
		Descuento        decimal.Decimal `json:"descuento"`
		PrecioTotal      decimal.Decimal `json:"precio_total"`
		CodigoImpuesto   string          `json:"codigo_impuesto"`
		CodigoPorcentaje string          `json:"codigo_porcentaje"`
		Tarifa           decimal.Decimal `json:"tarifa"`
		ValorImpuesto    decimal.Decimal `json:"valor_impuesto"`
	} `json:"detalles"`

	Subtotal       decimal.Decimal `json:"subtotal"`
	TotalDescuento decimal.Decimal `json:"total_descuento"`
	TotalImpuestos decimal.Decimal `json:"total_impuestos"`
	ImporteTotal   decimal.Decimal `json:"importe_total"`
}

func main() {
	file := flag.String("file", "", "archivo JSON con el comprobante a emitir")
	flag.Parse()
	if *file == "" {
		fmt.Fprintln(os.Stderr, "uso: emisor -file comprobante.json")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("leer archivo de comprobante")
	}
	var input comprobanteInput
	if err := json.Unmarshal(data, &input); err != nil {
		log.Fatal().Err(err).Msg("decodificar comprobante")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	c := aEntidad(&input, cfg.SRI)
	txRunner := postgres.NewTxRunner(pool)
	if err := txRunner.Run(ctx, func(repo repository.ComprobanteRepository) error {
		return repo.Create(ctx, c)
	}); err != nil {
		log.Fatal().Err(err).Msg("registrar comprobante")
	}
	log.Info().
		Str("comprobante_id", c.ID).
		Str("numero", c.NumeroCompleto()).
		Msg("comprobante registrado en borrador")

	repo := postgres.NewComprobanteRepository(pool)
	orchestrator := billing.NewEmisionOrchestrator(
		repo,
		infrasri.NewXMLBuilderService(emisorFromConfig(cfg.SRI), cfg.SRI.Ambiente),
		signer.NewDigitalSignatureService(),
		infrasri.NewSOAPClient(cfg.SRI.RecepcionURL, cfg.SRI.AutorizacionURL, log),
		billing.SRIConfig{
			Ambiente:     cfg.SRI.Ambiente,
			RUC:          cfg.SRI.RUC,
			CertPath:     cfg.SRI.CertPath,
			CertPassword: cfg.SRI.CertPassword,
		},
		log,
	)

	if err := orchestrator.EmitirComprobante(ctx, c.ID); err != nil {
		log.Fatal().Str("comprobante_id", c.ID).Err(err).Msg("emisión fallida")
	}

	final, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("releer comprobante")
	}
	log.Info().
		Str("comprobante_id", final.ID).
		Str("clave_acceso", final.ClaveAcceso).
		Str("estado", final.Estado).
		Str("numero_autorizacion", final.NumeroAutorizacion).
		Msg("emisión terminada")
}

func aEntidad(input *comprobanteInput, cfg config.SRIConfig) *entity.Comprobante {
	now := time.Now()
	c := &entity.Comprobante{
		TipoDocumento:               input.TipoDocumento,
		Estab:                       cfg.Estab,
		PtoEmi:                      cfg.PtoEmi,
		Secuencial:                  input.Secuencial,
		FechaEmision:                input.FechaEmision,
		TipoIdentificacionComprador: input.Comprador.TipoIdentificacion,
		IdentificacionComprador:     input.Comprador.Identificacion,
		RazonSocialComprador:        input.Comprador.RazonSocial,
		DireccionComprador:          input.Comprador.Direccion,
		EmailComprador:              input.Comprador.Email,
		Subtotal:                    input.Subtotal,
		TotalDescuento:              input.TotalDescuento,
		TotalImpuestos:              input.TotalImpuestos,
		ImporteTotal:                input.ImporteTotal,
		Estado:                      entity.EstadoBorrador,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
	if input.TipoDocumento == "" {
		c.TipoDocumento = pkgsri.DocFactura
	}
	if input.FechaEmision.IsZero() {
		c.FechaEmision = now
	}
	if input.DocModificado != nil {
		c.DocModificadoTipo = input.DocModificado.Tipo
		c.DocModificadoNumero = input.DocModificado.Numero
		fecha := input.DocModificado.Fecha
		c.DocModificadoFecha = &fecha
		c.MotivoModificacion = input.DocModificado.Motivo
	}
	for _, d := range input.Detalles {
		c.Detalles = append(c.Detalles, entity.Detalle{
			CodigoPrincipal:  d.CodigoPrincipal,
			Descripcion:      d.Descripcion,
			Cantidad:         d.Cantidad,
			PrecioUnitario:   d.PrecioUnitario,
			Descuento:        d.Descuento,
			PrecioTotal:      d.PrecioTotal,
			CodigoImpuesto:   d.CodigoImpuesto,
			CodigoPorcentaje: d.CodigoPorcentaje,
			Tarifa:           d.Tarifa,
			ValorImpuesto:    d.ValorImpuesto,
		})
	}
	return c
}

func emisorFromConfig(cfg config.SRIConfig) infrasri.Emisor {
	return infrasri.Emisor{
		RUC:                  cfg.RUC,
		RazonSocial:          cfg.RazonSocial,
		NombreComercial:      cfg.NombreComercial,
		DirMatriz:            cfg.DirMatriz,
		DirEstablecimiento:   cfg.DirEstablecimiento,
		Estab:                cfg.Estab,
		PtoEmi:               cfg.PtoEmi,
		ObligadoContabilidad: cfg.ObligadoContabilidad,
	}
}
