package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jcalvopina/facturacion-sri/internal/domain"
	"github.com/jcalvopina/facturacion-sri/internal/domain/entity"
	"github.com/jcalvopina/facturacion-sri/internal/domain/repository"
)

var _ repository.ComprobanteRepository = (*ComprobanteRepo)(nil)

// ComprobanteRepo implementación de ComprobanteRepository (usable con pool o tx).
type ComprobanteRepo struct {
	q Querier
}

// NewComprobanteRepository construye el adaptador. Pasar pool o tx (Querier).
func NewComprobanteRepository(q Querier) *ComprobanteRepo {
	return &ComprobanteRepo{q: q}
}

// Create persiste cabecera y detalles del comprobante.
func (r *ComprobanteRepo) Create(ctx context.Context, c *entity.Comprobante) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `
		INSERT INTO comprobantes (id, tipo_documento, estab, pto_emi, secuencial, fecha_emision,
			tipo_identificacion_comprador, identificacion_comprador, razon_social_comprador,
			direccion_comprador, email_comprador,
			doc_modificado_tipo, doc_modificado_numero, doc_modificado_fecha, motivo_modificacion,
			subtotal, total_descuento, total_impuestos, importe_total,
			estado, clave_acceso, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.TipoDocumento, c.Estab, c.PtoEmi, c.Secuencial, c.FechaEmision,
		c.TipoIdentificacionComprador, c.IdentificacionComprador, c.RazonSocialComprador,
		nullIfEmpty(c.DireccionComprador), nullIfEmpty(c.EmailComprador),
		nullIfEmpty(c.DocModificadoTipo), nullIfEmpty(c.DocModificadoNumero), c.DocModificadoFecha, nullIfEmpty(c.MotivoModificacion),
		c.Subtotal, c.TotalDescuento, c.TotalImpuestos, c.ImporteTotal,
		c.Estado, nullIfEmpty(c.ClaveAcceso), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("secuencial ya emitido para el punto de emisión: %w", err)
		}
		return fmt.Errorf("insert comprobante: %w", err)
	}
	for i := range c.Detalles {
		if err := r.createDetalle(ctx, c.ID, i, &c.Detalles[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ComprobanteRepo) createDetalle(ctx context.Context, comprobanteID string, orden int, d *entity.Detalle) error {
	query := `
		INSERT INTO comprobante_detalles (id, comprobante_id, orden, codigo_principal, descripcion,
			cantidad, precio_unitario, descuento, precio_total,
			codigo_impuesto, codigo_porcentaje, tarifa, valor_impuesto)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		uuid.New().String(), comprobanteID, orden, d.CodigoPrincipal, d.Descripcion,
		d.Cantidad, d.PrecioUnitario, d.Descuento, d.PrecioTotal,
		d.CodigoImpuesto, d.CodigoPorcentaje, d.Tarifa, d.ValorImpuesto,
	)
	if err != nil {
		return fmt.Errorf("insert detalle: %w", err)
	}
	return nil
}

// Update persiste estado y artefactos SRI del comprobante. Los artefactos se
// escriben con COALESCE: una transición que no produjo un artefacto nuevo no
// borra el persistido (ej. reintento de envío no pierde el XML firmado).
func (r *ComprobanteRepo) Update(ctx context.Context, c *entity.Comprobante) error {
	query := `
		UPDATE comprobantes
		SET estado              = $2,
		    clave_acceso        = COALESCE($3, clave_acceso),
		    xml_generado        = COALESCE($4, xml_generado),
		    xml_firmado         = COALESCE($5, xml_firmado),
		    numero_autorizacion = COALESCE($6, numero_autorizacion),
		    fecha_autorizacion  = COALESCE($7, fecha_autorizacion),
		    respuesta_sri       = COALESCE($8, respuesta_sri),
		    mensajes_sri        = COALESCE($9, mensajes_sri),
		    updated_at          = $10
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		c.ID,
		c.Estado,
		nullIfEmpty(c.ClaveAcceso),
		nullIfEmpty(c.XMLGenerado),
		nullIfEmpty(c.XMLFirmado),
		nullIfEmpty(c.NumeroAutorizacion),
		c.FechaAutorizacion,
		nullIfEmpty(c.RespuestaSRI),
		nullIfEmpty(c.MensajesSRI),
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update comprobante: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: comprobante %s", domain.ErrNotFound, c.ID)
	}
	return nil
}

// GetByID obtiene un comprobante completo (cabecera + detalles) por ID.
func (r *ComprobanteRepo) GetByID(ctx context.Context, id string) (*entity.Comprobante, error) {
	query := `
		SELECT id, tipo_documento, estab, pto_emi, secuencial, fecha_emision,
		       tipo_identificacion_comprador, identificacion_comprador, razon_social_comprador,
		       COALESCE(direccion_comprador, ''), COALESCE(email_comprador, ''),
		       COALESCE(doc_modificado_tipo, ''), COALESCE(doc_modificado_numero, ''),
		       doc_modificado_fecha, COALESCE(motivo_modificacion, ''),
		       subtotal, total_descuento, total_impuestos, importe_total,
		       estado, clave_acceso, xml_generado, xml_firmado,
		       numero_autorizacion, fecha_autorizacion, respuesta_sri, mensajes_sri,
		       created_at, updated_at
		FROM comprobantes WHERE id = $1`
	var c entity.Comprobante
	var clave, xmlGen, xmlFirmado, numAut, respuesta, mensajes *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TipoDocumento, &c.Estab, &c.PtoEmi, &c.Secuencial, &c.FechaEmision,
		&c.TipoIdentificacionComprador, &c.IdentificacionComprador, &c.RazonSocialComprador,
		&c.DireccionComprador, &c.EmailComprador,
		&c.DocModificadoTipo, &c.DocModificadoNumero,
		&c.DocModificadoFecha, &c.MotivoModificacion,
		&c.Subtotal, &c.TotalDescuento, &c.TotalImpuestos, &c.ImporteTotal,
		&c.Estado, &clave, &xmlGen, &xmlFirmado,
		&numAut, &c.FechaAutorizacion, &respuesta, &mensajes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: comprobante %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get comprobante: %w", err)
	}
	c.ClaveAcceso = derefStr(clave)
	c.XMLGenerado = derefStr(xmlGen)
	c.XMLFirmado = derefStr(xmlFirmado)
	c.NumeroAutorizacion = derefStr(numAut)
	c.RespuestaSRI = derefStr(respuesta)
	c.MensajesSRI = derefStr(mensajes)

	detalles, err := r.getDetalles(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Detalles = detalles
	return &c, nil
}

func (r *ComprobanteRepo) getDetalles(ctx context.Context, comprobanteID string) ([]entity.Detalle, error) {
	query := `
		SELECT codigo_principal, descripcion, cantidad, precio_unitario, descuento, precio_total,
		       codigo_impuesto, codigo_porcentaje, tarifa, valor_impuesto
		FROM comprobante_detalles WHERE comprobante_id = $1 ORDER BY orden`
	rows, err := r.q.Query(ctx, query, comprobanteID)
	if err != nil {
		return nil, fmt.Errorf("list detalles: %w", err)
	}
	defer rows.Close()
	var list []entity.Detalle
	for rows.Next() {
		var d entity.Detalle
		if err := rows.Scan(&d.CodigoPrincipal, &d.Descripcion, &d.Cantidad, &d.PrecioUnitario,
			&d.Descuento, &d.PrecioTotal, &d.CodigoImpuesto, &d.CodigoPorcentaje, &d.Tarifa, &d.ValorImpuesto); err != nil {
			return nil, fmt.Errorf("scan detalle: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ListByEstado devuelve los comprobantes en un estado dado, sin XMLs ni
// detalles (consulta ligera para el barrido periódico de autorizaciones).
func (r *ComprobanteRepo) ListByEstado(ctx context.Context, estado string) ([]*entity.Comprobante, error) {
	query := `
		SELECT id, tipo_documento, estab, pto_emi, secuencial, fecha_emision,
		       estado, COALESCE(clave_acceso, ''), COALESCE(numero_autorizacion, ''),
		       fecha_autorizacion, created_at, updated_at
		FROM comprobantes WHERE estado = $1 ORDER BY created_at`
	rows, err := r.q.Query(ctx, query, estado)
	if err != nil {
		return nil, fmt.Errorf("list comprobantes por estado: %w", err)
	}
	defer rows.Close()
	var list []*entity.Comprobante
	for rows.Next() {
		var c entity.Comprobante
		if err := rows.Scan(&c.ID, &c.TipoDocumento, &c.Estab, &c.PtoEmi, &c.Secuencial, &c.FechaEmision,
			&c.Estado, &c.ClaveAcceso, &c.NumeroAutorizacion,
			&c.FechaAutorizacion, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comprobante: %w", err)
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
