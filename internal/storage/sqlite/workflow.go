package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// CreateTemplate inserts a new template. Duplicate name or prefix within
// the project is a conflict.
func (q *queries) CreateTemplate(ctx context.Context, template *types.Template) error {
	if err := template.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM templates WHERE project_id = ? AND (name = ? OR prefix = ?)
	`, template.ProjectID, template.Name, template.Prefix).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check template uniqueness: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("template %q (prefix %q) already exists in project: %w",
			template.Name, template.Prefix, storage.ErrConflict)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO templates (project_id, name, prefix, locked, critical_age, frozen_time, initial_state)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, template.ProjectID, template.Name, template.Prefix, boolInt(template.Locked),
		template.CriticalAge, template.FrozenTime, template.InitialState)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	template.ID, err = res.LastInsertId()
	return err
}

// UpdateTemplate writes back mutable template attributes
func (q *queries) UpdateTemplate(ctx context.Context, template *types.Template) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE templates SET locked = ?, critical_age = ?, frozen_time = ?, initial_state = ?
		WHERE id = ?
	`, boolInt(template.Locked), template.CriticalAge, template.FrozenTime,
		template.InitialState, template.ID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by id
func (q *queries) GetTemplate(ctx context.Context, id int64) (*types.Template, error) {
	var t types.Template
	var locked int
	err := q.q.QueryRowContext(ctx, `
		SELECT id, project_id, name, prefix, locked, critical_age, frozen_time, initial_state
		FROM templates WHERE id = ?
	`, id).Scan(&t.ID, &t.ProjectID, &t.Name, &t.Prefix, &locked,
		&t.CriticalAge, &t.FrozenTime, &t.InitialState)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	t.Locked = locked != 0
	return &t, nil
}

// ListTemplates returns the project's templates ordered by id
func (q *queries) ListTemplates(ctx context.Context, projectID int64) ([]*types.Template, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, project_id, name, prefix, locked, critical_age, frozen_time, initial_state
		FROM templates WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()
	var templates []*types.Template
	for rows.Next() {
		var t types.Template
		var locked int
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Prefix, &locked,
			&t.CriticalAge, &t.FrozenTime, &t.InitialState); err != nil {
			return nil, err
		}
		t.Locked = locked != 0
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// CreateState inserts a new state and its responsible groups
func (q *queries) CreateState(ctx context.Context, state *types.State) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO states (template_id, name, type, responsible) VALUES (?, ?, ?, ?)
	`, state.TemplateID, state.Name, string(state.Type), string(state.Responsible))
	if err != nil {
		return fmt.Errorf("failed to create state: %w", err)
	}
	if state.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for _, gid := range state.ResponsibleGroups {
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO state_responsible_groups (state_id, group_id) VALUES (?, ?)
		`, state.ID, gid); err != nil {
			return fmt.Errorf("failed to add responsible group: %w", err)
		}
	}
	return nil
}

// CreateField inserts a new field of a state
func (q *queries) CreateField(ctx context.Context, field *types.Field) error {
	if err := field.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO fields (state_id, name, type, required, position, max_length, min_value, max_value, default_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, field.StateID, field.Name, string(field.Type), boolInt(field.Required),
		field.Position, field.MaxLength, nullInt(field.MinValue), nullInt(field.MaxValue), field.Default)
	if err != nil {
		return fmt.Errorf("failed to create field: %w", err)
	}
	field.ID, err = res.LastInsertId()
	return err
}

// CreateListItem inserts one administered option of a list field
func (q *queries) CreateListItem(ctx context.Context, item *types.ListItem) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO list_items (field_id, key, label) VALUES (?, ?, ?)
	`, item.FieldID, item.Key, item.Label)
	if err != nil {
		return fmt.Errorf("failed to create list item: %w", err)
	}
	item.ID, err = res.LastInsertId()
	return err
}

// CreateTransition inserts a transition and its role and group grants
func (q *queries) CreateTransition(ctx context.Context, transition *types.Transition) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO transitions (from_state, to_state) VALUES (?, ?)
	`, transition.FromState, transition.ToState)
	if err != nil {
		return fmt.Errorf("failed to create transition: %w", err)
	}
	if transition.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for _, r := range transition.Roles {
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO transition_roles (transition_id, role) VALUES (?, ?)
		`, transition.ID, string(r)); err != nil {
			return fmt.Errorf("failed to add transition role: %w", err)
		}
	}
	for _, gid := range transition.Groups {
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO transition_groups (transition_id, group_id) VALUES (?, ?)
		`, transition.ID, gid); err != nil {
			return fmt.Errorf("failed to add transition group: %w", err)
		}
	}
	return nil
}

// SetGrant replaces the role and group grants of one permission
func (q *queries) SetGrant(ctx context.Context, grant *types.Grant) error {
	if _, err := q.q.ExecContext(ctx, `
		DELETE FROM grant_roles WHERE template_id = ? AND permission = ?
	`, grant.TemplateID, string(grant.Permission)); err != nil {
		return fmt.Errorf("failed to clear grant roles: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `
		DELETE FROM grant_groups WHERE template_id = ? AND permission = ?
	`, grant.TemplateID, string(grant.Permission)); err != nil {
		return fmt.Errorf("failed to clear grant groups: %w", err)
	}
	for _, r := range grant.Roles {
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO grant_roles (template_id, permission, role) VALUES (?, ?, ?)
		`, grant.TemplateID, string(grant.Permission), string(r)); err != nil {
			return fmt.Errorf("failed to add grant role: %w", err)
		}
	}
	for _, gid := range grant.Groups {
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO grant_groups (template_id, permission, group_id) VALUES (?, ?, ?)
		`, grant.TemplateID, string(grant.Permission), gid); err != nil {
			return fmt.Errorf("failed to add grant group: %w", err)
		}
	}
	return nil
}

// GetWorkflow loads the full definition of one template: its project,
// states with responsible groups, fields with list items, transitions
// with their grants, and permission grants.
func (q *queries) GetWorkflow(ctx context.Context, templateID int64) (*types.Workflow, error) {
	tmpl, err := q.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	project, err := q.GetProject(ctx, tmpl.ProjectID)
	if err != nil {
		return nil, err
	}
	w := &types.Workflow{
		Template:  tmpl,
		Project:   project,
		States:    make(map[int64]*types.State),
		Fields:    make(map[int64][]*types.Field),
		ListItems: make(map[int64][]*types.ListItem),
		Grants:    make(map[types.Permission]*types.Grant),
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT id, template_id, name, type, responsible FROM states
		WHERE template_id = ? ORDER BY id
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s types.State
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.Name, &s.Type, &s.Responsible); err != nil {
			return nil, err
		}
		w.States[s.ID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grows, err := q.q.QueryContext(ctx, `
		SELECT srg.state_id, srg.group_id FROM state_responsible_groups srg
		JOIN states s ON s.id = srg.state_id WHERE s.template_id = ?
		ORDER BY srg.state_id, srg.group_id
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responsible groups: %w", err)
	}
	defer grows.Close()
	for grows.Next() {
		var stateID, groupID int64
		if err := grows.Scan(&stateID, &groupID); err != nil {
			return nil, err
		}
		if s := w.States[stateID]; s != nil {
			s.ResponsibleGroups = append(s.ResponsibleGroups, groupID)
		}
	}
	if err := grows.Err(); err != nil {
		return nil, err
	}

	frows, err := q.q.QueryContext(ctx, `
		SELECT f.id, f.state_id, f.name, f.type, f.required, f.position,
		       f.max_length, f.min_value, f.max_value, f.default_value
		FROM fields f JOIN states s ON s.id = f.state_id
		WHERE s.template_id = ? ORDER BY f.state_id, f.position
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var f types.Field
		var required int
		var minVal, maxVal sql.NullInt64
		if err := frows.Scan(&f.ID, &f.StateID, &f.Name, &f.Type, &required,
			&f.Position, &f.MaxLength, &minVal, &maxVal, &f.Default); err != nil {
			return nil, err
		}
		f.Required = required != 0
		if minVal.Valid {
			v := minVal.Int64
			f.MinValue = &v
		}
		if maxVal.Valid {
			v := maxVal.Int64
			f.MaxValue = &v
		}
		w.Fields[f.StateID] = append(w.Fields[f.StateID], &f)
	}
	if err := frows.Err(); err != nil {
		return nil, err
	}

	irows, err := q.q.QueryContext(ctx, `
		SELECT li.id, li.field_id, li.key, li.label
		FROM list_items li
		JOIN fields f ON f.id = li.field_id
		JOIN states s ON s.id = f.state_id
		WHERE s.template_id = ? ORDER BY li.field_id, li.key
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load list items: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var li types.ListItem
		if err := irows.Scan(&li.ID, &li.FieldID, &li.Key, &li.Label); err != nil {
			return nil, err
		}
		w.ListItems[li.FieldID] = append(w.ListItems[li.FieldID], &li)
	}
	if err := irows.Err(); err != nil {
		return nil, err
	}

	trows, err := q.q.QueryContext(ctx, `
		SELECT t.id, t.from_state, t.to_state FROM transitions t
		JOIN states s ON s.id = t.from_state
		WHERE s.template_id = ? ORDER BY t.id
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	defer trows.Close()
	transByID := make(map[int64]*types.Transition)
	for trows.Next() {
		var t types.Transition
		if err := trows.Scan(&t.ID, &t.FromState, &t.ToState); err != nil {
			return nil, err
		}
		w.Transitions = append(w.Transitions, &t)
		transByID[t.ID] = &t
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	rrows, err := q.q.QueryContext(ctx, `
		SELECT tr.transition_id, tr.role FROM transition_roles tr
		JOIN transitions t ON t.id = tr.transition_id
		JOIN states s ON s.id = t.from_state
		WHERE s.template_id = ? ORDER BY tr.transition_id, tr.role
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transition roles: %w", err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var id int64
		var role string
		if err := rrows.Scan(&id, &role); err != nil {
			return nil, err
		}
		if t := transByID[id]; t != nil {
			t.Roles = append(t.Roles, types.Role(role))
		}
	}
	if err := rrows.Err(); err != nil {
		return nil, err
	}

	tgrows, err := q.q.QueryContext(ctx, `
		SELECT tg.transition_id, tg.group_id FROM transition_groups tg
		JOIN transitions t ON t.id = tg.transition_id
		JOIN states s ON s.id = t.from_state
		WHERE s.template_id = ? ORDER BY tg.transition_id, tg.group_id
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transition groups: %w", err)
	}
	defer tgrows.Close()
	for tgrows.Next() {
		var id, gid int64
		if err := tgrows.Scan(&id, &gid); err != nil {
			return nil, err
		}
		if t := transByID[id]; t != nil {
			t.Groups = append(t.Groups, gid)
		}
	}
	if err := tgrows.Err(); err != nil {
		return nil, err
	}

	grant := func(p types.Permission) *types.Grant {
		g := w.Grants[p]
		if g == nil {
			g = &types.Grant{TemplateID: templateID, Permission: p}
			w.Grants[p] = g
		}
		return g
	}
	prows, err := q.q.QueryContext(ctx, `
		SELECT permission, role FROM grant_roles WHERE template_id = ?
		ORDER BY permission, role
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grant roles: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var perm, role string
		if err := prows.Scan(&perm, &role); err != nil {
			return nil, err
		}
		g := grant(types.Permission(perm))
		g.Roles = append(g.Roles, types.Role(role))
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	pgrows, err := q.q.QueryContext(ctx, `
		SELECT permission, group_id FROM grant_groups WHERE template_id = ?
		ORDER BY permission, group_id
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grant groups: %w", err)
	}
	defer pgrows.Close()
	for pgrows.Next() {
		var perm string
		var gid int64
		if err := pgrows.Scan(&perm, &gid); err != nil {
			return nil, err
		}
		g := grant(types.Permission(perm))
		g.Groups = append(g.Groups, gid)
	}
	if err := pgrows.Err(); err != nil {
		return nil, err
	}

	return w, nil
}
