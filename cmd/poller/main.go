// poller consulta periódicamente la autorización de los comprobantes en
// ENVIADO_SRI y aplica el resultado (AUTORIZADO / NO AUTORIZADO). Los que
// siguen EN PROCESO quedan para el siguiente barrido.
//
// Uso: go run ./cmd/poller [-interval 60s]
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcalvopina/facturacion-sri/internal/application/billing"
	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	"github.com/jcalvopina/facturacion-sri/internal/infrastructure/postgres"
	infrasri "github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri"
	"github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri/signer"
	"github.com/jcalvopina/facturacion-sri/pkg/config"
	"github.com/jcalvopina/facturacion-sri/pkg/logger"
)

func main() {
	interval := flag.Duration("interval", 60*time.Second, "intervalo entre barridos")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("ambiente_sri", cfg.SRI.Ambiente).
		Dur("interval", *interval).
		Msg("iniciando poller de autorizaciones")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

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

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	barrer(ctx, repo, orchestrator, log)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("poller detenido")
			return
		case <-ticker.C:
			barrer(ctx, repo, orchestrator, log)
		}
	}
}

// barrer consulta la autorización de cada comprobante ENVIADO_SRI. Un fallo en
// un comprobante no detiene el barrido de los demás.
func barrer(ctx context.Context, repo *postgres.ComprobanteRepo, orchestrator *billing.EmisionOrchestrator, log *logger.Logger) {
	pendientes, err := repo.ListByEstado(ctx, entity.EstadoEnviadoSRI)
	if err != nil {
		log.Error().Err(err).Msg("listar comprobantes pendientes de autorización")
		return
	}
	if len(pendientes) == 0 {
		return
	}
	log.Info().Int("pendientes", len(pendientes)).Msg("barrido de autorizaciones")
	for _, c := range pendientes {
		if ctx.Err() != nil {
			return
		}
		if err := orchestrator.ConsultarEstado(ctx, c.ID); err != nil {
			log.Warn().
				Str("comprobante_id", c.ID).
				Str("clave_acceso", c.ClaveAcceso).
				Err(err).
				Msg("consulta de autorización fallida; se reintenta en el próximo barrido")
		}
	}
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
