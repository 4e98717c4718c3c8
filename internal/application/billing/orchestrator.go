package billing

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	"github.com/jcalvopina/facturacion-sri/internal/domain/repository"
	domsri "github.com/jcalvopina/facturacion-sri/internal/domain/sri"
	infrasri "github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri"
	"github.com/jcalvopina/facturacion-sri/internal/infrastructure/sri/signer"
	"github.com/jcalvopina/facturacion-sri/pkg/logger"
	pkgsri "github.com/jcalvopina/facturacion-sri/pkg/sri"
)

// EmisionOrchestrator orquesta el ciclo completo de emisión electrónica SRI:
//
//	Clave de acceso → XML → Firma XAdES-BES → Recepción SOAP → Autorización → Update DB
//
// La corrección del pipeline descansa en el estado persistido del comprobante,
// no en locks en memoria: una clave de acceso se envía a recepción a lo sumo
// una vez aunque el proceso se reinicie a mitad de un intento. Emisiones de
// comprobantes distintos pueden correr en paralelo; el único recurso
// compartido es el certificado, que es de sólo lectura.
type EmisionOrchestrator struct {
	repo      repository.ComprobanteRepository
	claveSvc  *domsri.ClaveAccesoService
	builder   *infrasri.XMLBuilderService
	signerSvc pkgsri.Signer
	client    infrasri.SRIClient
	parser    *infrasri.ResponseParser
	cfg       SRIConfig
	log       *logger.Logger

	// certLoader carga el certificado de firma; reemplazable en tests.
	certLoader func(path, password string) (tls.Certificate, error)
}

// NewEmisionOrchestrator construye el orquestador con todas sus dependencias.
func NewEmisionOrchestrator(
	repo repository.ComprobanteRepository,
	builder *infrasri.XMLBuilderService,
	signerSvc pkgsri.Signer,
	client infrasri.SRIClient,
	cfg SRIConfig,
	log *logger.Logger,
) *EmisionOrchestrator {
	return &EmisionOrchestrator{
		repo:       repo,
		claveSvc:   domsri.NewClaveAccesoService(),
		builder:    builder,
		signerSvc:  signerSvc,
		client:     client,
		parser:     infrasri.NewResponseParser(),
		cfg:        cfg,
		log:        log,
		certLoader: signer.LoadFromP12,
	}
}

// EmitirComprobante ejecuta BORRADOR → PENDIENTE → GENERADO → envío → estado
// final. Un comprobante ya pasado de GENERADO se rechaza con
// ErrTransicionInvalida sin tocar la red: nunca se duplica un envío.
//
// Desde GENERADO (reintento tras un fallo de transporte o un timeout ambiguo)
// primero se consulta la autorización por clave de acceso: el SRI pudo haber
// recibido el comprobante aunque el cliente no viera la respuesta.
func (o *EmisionOrchestrator) EmitirComprobante(ctx context.Context, comprobanteID string) error {
	c, err := o.repo.GetByID(ctx, comprobanteID)
	if err != nil {
		return fmt.Errorf("obtener comprobante %s: %w", comprobanteID, err)
	}
	if c == nil {
		return fmt.Errorf("comprobante %s: %w", comprobanteID, domain.ErrNotFound)
	}

	switch c.Estado {
	case entity.EstadoBorrador, entity.EstadoPendiente:
		// flujo normal
	case entity.EstadoGenerado:
		// Reintento: resolver primero un envío previo posiblemente entregado.
		if resuelto, err := o.resolverEnvioAmbiguo(ctx, c); err != nil {
			return err
		} else if resuelto {
			return nil
		}
	default:
		return fmt.Errorf("emitir en estado %q: %w", c.Estado, domain.ErrTransicionInvalida)
	}

	if c.Estado == entity.EstadoBorrador {
		c.Estado = entity.EstadoPendiente
		if err := o.persistir(ctx, c); err != nil {
			return err
		}
	}

	if c.Estado != entity.EstadoGenerado {
		if err := o.generarYFirmar(ctx, c); err != nil {
			return err
		}
	}

	return o.enviarRecepcion(ctx, c)
}

// generarYFirmar asigna la clave de acceso, construye el XML, lo firma y
// persiste el comprobante en GENERADO con ambos artefactos.
func (o *EmisionOrchestrator) generarYFirmar(ctx context.Context, c *entity.Comprobante) error {
	if c.ClaveAcceso == "" {
		clave, err := o.claveSvc.Generate(&domsri.ClaveAccesoParams{
			FechaEmision:  c.FechaEmision.In(time.FixedZone("-05", -5*60*60)),
			TipoDocumento: c.TipoDocumento,
			RUC:           o.cfg.RUC,
			Ambiente:      o.cfg.Ambiente,
			Estab:         c.Estab,
			PtoEmi:        c.PtoEmi,
			Secuencial:    c.Secuencial,
		})
		if err != nil {
			return fmt.Errorf("%w: clave de acceso: %v", domain.ErrConstruccion, err)
		}
		c.ClaveAcceso = clave
	}

	xmlBytes, err := o.builder.Build(c, c.ClaveAcceso)
	if err != nil {
		o.log.Error().Str("comprobante_id", c.ID).Err(err).Msg("generación de XML fallida")
		return err
	}

	cert, err := o.certLoader(o.cfg.CertPath, o.cfg.CertPassword)
	if err != nil {
		return fmt.Errorf("%w: cargar certificado: %v", domain.ErrFirma, err)
	}
	signedBytes, err := o.firmar(xmlBytes, cert)
	if err != nil {
		o.log.Error().Str("comprobante_id", c.ID).Err(err).Msg("firma fallida; requiere intervención del operador")
		return err
	}

	c.XMLGenerado = string(xmlBytes)
	c.XMLFirmado = string(signedBytes)
	c.Estado = entity.EstadoGenerado
	return o.persistir(ctx, c)
}

func (o *EmisionOrchestrator) firmar(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	return o.signerSvc.Sign(xmlBytes, cert)
}

// enviarRecepcion envía el XML firmado y aplica el resultado de recepción.
// RECIBIDA pasa a ENVIADO_SRI e intenta una consulta de autorización en
// línea; DEVUELTA pasa a RECHAZADO con la lista de mensajes persistida y no
// se reenvía automáticamente.
func (o *EmisionOrchestrator) enviarRecepcion(ctx context.Context, c *entity.Comprobante) error {
	raw, err := o.client.EnviarComprobante(ctx, []byte(c.XMLFirmado))
	if err != nil {
		// Fallo de transporte: el estado queda en GENERADO; un reintento
		// posterior consultará la autorización antes de reenviar.
		return fmt.Errorf("recepción de %s: %w", c.ClaveAcceso, err)
	}
	c.RespuestaSRI = raw

	recepcion, err := o.parser.ParseRecepcion(raw)
	if err != nil {
		// Fault o respuesta malformada: resultado del envío desconocido. Se
		// persiste el texto crudo para el operador y el estado no avanza.
		if perr := o.persistir(ctx, c); perr != nil {
			return perr
		}
		o.log.Error().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Err(err).
			Msg("respuesta de recepción no interpretable")
		return fmt.Errorf("recepción de %s: %w", c.ClaveAcceso, err)
	}

	if !recepcion.Recibida() {
		c.Estado = entity.EstadoRechazado
		c.MensajesSRI = serializarMensajes(recepcion.Mensajes)
		if err := o.persistir(ctx, c); err != nil {
			return err
		}
		o.log.Warn().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Int("mensajes", len(recepcion.Mensajes)).
			Msg("comprobante DEVUELTO por el SRI")
		return nil
	}

	c.Estado = entity.EstadoEnviadoSRI
	if err := o.persistir(ctx, c); err != nil {
		return err
	}
	o.log.Info().
		Str("comprobante_id", c.ID).
		Str("clave_acceso", c.ClaveAcceso).
		Msg("comprobante RECIBIDO por el SRI")

	// Consulta de autorización en línea: si el SRI ya decidió, se finaliza en
	// el mismo ciclo; EN PROCESO o error dejan el barrido periódico a cargo.
	if err := o.consultarYAplicar(ctx, c); err != nil {
		o.log.Warn().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Err(err).
			Msg("consulta de autorización en línea fallida; queda para el barrido")
	}
	return nil
}

// ConsultarEstado consulta la autorización de un comprobante ENVIADO_SRI y
// aplica el resultado. EN PROCESO no cambia nada (reintentar después); ERROR
// tampoco, pero se registra: una caída transitoria del SRI no debe
// confundirse con un rechazo.
func (o *EmisionOrchestrator) ConsultarEstado(ctx context.Context, comprobanteID string) error {
	c, err := o.repo.GetByID(ctx, comprobanteID)
	if err != nil {
		return fmt.Errorf("obtener comprobante %s: %w", comprobanteID, err)
	}
	if c == nil {
		return fmt.Errorf("comprobante %s: %w", comprobanteID, domain.ErrNotFound)
	}
	if c.Estado != entity.EstadoEnviadoSRI {
		return fmt.Errorf("consultar estado en %q: %w", c.Estado, domain.ErrTransicionInvalida)
	}
	return o.consultarYAplicar(ctx, c)
}

// consultarYAplicar ejecuta la consulta de autorización y materializa el
// resultado sobre el comprobante.
func (o *EmisionOrchestrator) consultarYAplicar(ctx context.Context, c *entity.Comprobante) error {
	raw, err := o.client.ConsultarAutorizacion(ctx, c.ClaveAcceso)
	if err != nil {
		return fmt.Errorf("autorización de %s: %w", c.ClaveAcceso, err)
	}

	aut, err := o.parser.ParseAutorizacion(raw)
	if err != nil {
		o.log.Error().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Err(err).
			Msg("respuesta de autorización no interpretable")
		return fmt.Errorf("autorización de %s: %w", c.ClaveAcceso, err)
	}

	switch aut.Estado {
	case pkgsri.EstadoAutorizado:
		c.Estado = entity.EstadoAutorizado
		c.NumeroAutorizacion = aut.NumeroAutorizacion
		c.FechaAutorizacion = aut.FechaAutorizacion
		c.RespuestaSRI = raw
		if err := o.persistir(ctx, c); err != nil {
			return err
		}
		o.log.Info().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Str("numero_autorizacion", aut.NumeroAutorizacion).
			Msg("comprobante AUTORIZADO")
	case pkgsri.EstadoNoAutorizado:
		c.Estado = entity.EstadoRechazado
		c.MensajesSRI = serializarMensajes(aut.Mensajes)
		c.RespuestaSRI = raw
		if err := o.persistir(ctx, c); err != nil {
			return err
		}
		o.log.Warn().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Int("mensajes", len(aut.Mensajes)).
			Msg("comprobante NO AUTORIZADO")
	case pkgsri.EstadoErrorSRI:
		// Estado sin cambio: visible para el operador, reintentable.
		o.log.Error().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Str("detalle", serializarMensajes(aut.Mensajes)).
			Msg("el SRI respondió con Fault en la consulta de autorización")
	default:
		// EN PROCESO: el caller debe re-consultar más tarde.
		o.log.Debug().
			Str("comprobante_id", c.ID).
			Str("clave_acceso", c.ClaveAcceso).
			Msg("autorización aún en proceso")
	}
	return nil
}

// Anular marca el comprobante como ANULADO. Es un cambio de estado puramente
// local: el flujo de anulación ante el SRI, si aplica, corre por fuera.
func (o *EmisionOrchestrator) Anular(ctx context.Context, comprobanteID string) error {
	c, err := o.repo.GetByID(ctx, comprobanteID)
	if err != nil {
		return fmt.Errorf("obtener comprobante %s: %w", comprobanteID, err)
	}
	if c == nil {
		return fmt.Errorf("comprobante %s: %w", comprobanteID, domain.ErrNotFound)
	}
	if c.Estado == entity.EstadoAnulado {
		return fmt.Errorf("anular un comprobante ya anulado: %w", domain.ErrTransicionInvalida)
	}
	c.Estado = entity.EstadoAnulado
	if err := o.persistir(ctx, c); err != nil {
		return err
	}
	o.log.Info().Str("comprobante_id", c.ID).Msg("comprobante anulado")
	return nil
}

// resolverEnvioAmbiguo consulta la autorización por clave de acceso antes de
// reenviar un comprobante GENERADO. Si el SRI ya decidió (el envío previo sí
// llegó), aplica el resultado y devuelve true; si no hay rastro, devuelve
// false y el caller procede con el envío.
func (o *EmisionOrchestrator) resolverEnvioAmbiguo(ctx context.Context, c *entity.Comprobante) (bool, error) {
	if c.ClaveAcceso == "" {
		return false, nil
	}
	raw, err := o.client.ConsultarAutorizacion(ctx, c.ClaveAcceso)
	if err != nil {
		return false, fmt.Errorf("verificación previa de %s: %w", c.ClaveAcceso, err)
	}
	aut, err := o.parser.ParseAutorizacion(raw)
	if err != nil {
		return false, fmt.Errorf("verificación previa de %s: %w", c.ClaveAcceso, err)
	}
	switch aut.Estado {
	case pkgsri.EstadoAutorizado:
		c.Estado = entity.EstadoAutorizado
		c.NumeroAutorizacion = aut.NumeroAutorizacion
		c.FechaAutorizacion = aut.FechaAutorizacion
		c.RespuestaSRI = raw
		return true, o.persistir(ctx, c)
	case pkgsri.EstadoNoAutorizado:
		c.Estado = entity.EstadoRechazado
		c.MensajesSRI = serializarMensajes(aut.Mensajes)
		c.RespuestaSRI = raw
		return true, o.persistir(ctx, c)
	case pkgsri.EstadoErrorSRI:
		// Fault del SRI: la verificación no resolvió nada en ningún sentido.
		// Reenviar a ciegas rompería el envío a lo sumo una vez; el
		// comprobante queda en GENERADO para un reintento posterior.
		return false, fmt.Errorf("verificación previa de %s: %w", c.ClaveAcceso, domain.ErrFaultSRI)
	}
	// EN PROCESO sin autorización previa conocida: no hay evidencia de que el
	// envío llegara; se procede a enviar.
	return false, nil
}

func (o *EmisionOrchestrator) persistir(ctx context.Context, c *entity.Comprobante) error {
	c.UpdatedAt = time.Now()
	if err := o.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("persistir comprobante %s en %s: %w", c.ID, c.Estado, err)
	}
	return nil
}

func serializarMensajes(mensajes []pkgsri.Mensaje) string {
	if len(mensajes) == 0 {
		return ""
	}
	b, err := json.Marshal(mensajes)
	if err != nil {
		return ""
	}
	return string(b)
}
