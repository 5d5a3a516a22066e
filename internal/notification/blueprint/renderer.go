package blueprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/notifly/internal/notification/template"
)

// RenderRequest はレンダリング対象の配信レコードから取り出した情報。
type RenderRequest struct {
	// BlueprintRef はブループリント名またはID。空の場合はResourceNameのオートメーションで解決する。
	BlueprintRef string
	// ResourceName は配信レコードのリソース名。
	ResourceName string
	// Values はプレースホルダ値。
	Values *template.Value
}

// Renderer は配信レコードのブループリントを解決し、件名と本文をレンダリングする。
// Brandingの値はプレースホルダ値より優先して差し込まれる。
type Renderer struct {
	store    *Store
	registry *Registry
	branding Branding
	now      func() time.Time
}

// RendererOption はRendererの設定。
type RendererOption func(*Renderer)

// WithBranding はすべてのメールに差し込むアプリケーション情報を設定する。
func WithBranding(b Branding) RendererOption {
	return func(r *Renderer) { r.branding = b }
}

// NewRenderer は新しいRendererを生成する。
func NewRenderer(store *Store, registry *Registry, opts ...RendererOption) *Renderer {
	r := &Renderer{store: store, registry: registry, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve はレンダリングに使うブループリントを解決する。
// 参照先が無い場合はErrNotFoundを返す。
func (r *Renderer) Resolve(ctx context.Context, req RenderRequest) (*Blueprint, error) {
	if req.BlueprintRef != "" {
		return r.store.FindByIDOrName(ctx, req.BlueprintRef)
	}
	if req.ResourceName == "" {
		return nil, fmt.Errorf("%w: ブループリントの参照がありません", ErrNotFound)
	}

	id, err := r.registry.ResolveBlueprintID(ctx, req.ResourceName)
	if err != nil {
		if errors.Is(err, ErrAutomationNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}
	return r.store.FindByID(ctx, id)
}

// Render はブループリントを解決してレンダリングする。
// ブループリントが無い場合はErrNotFound、値が不足する場合は*template.MissingPlaceholdersError、
// 値に循環参照がある場合はtemplate.ErrCircularReferenceを返す。
func (r *Renderer) Render(ctx context.Context, req RenderRequest) (template.Rendered, error) {
	bp, err := r.Resolve(ctx, req)
	if err != nil {
		return template.Rendered{}, err
	}
	return template.Render(bp.SubjectTemplate, bp.BodyTemplate, bp.Placeholders, r.brand(req.Values))
}

// RenderMail は組み込みの定型メールをレンダリングする。
// 未知のメール名はErrNotFoundを返す。エラーの種類はRenderと同じ。
func (r *Renderer) RenderMail(name string, values *template.Value) (template.Rendered, error) {
	m, err := lookupMail(name)
	if err != nil {
		return template.Rendered{}, err
	}
	return template.Render(m.subject, m.body, template.ExtractPlaceholders(m.subject, m.body), r.brand(values))
}

func (r *Renderer) brand(values *template.Value) *template.Value {
	return values.With(r.branding.values(r.now()))
}
