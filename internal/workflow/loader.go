package workflow

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// Definition is the declarative YAML form of one template: states with
// their fields, transitions between them, and permission grants. Groups
// are referenced by name and resolved against the owning project at
// install time.
type Definition struct {
	Template struct {
		Name        string `yaml:"name"`
		Prefix      string `yaml:"prefix"`
		CriticalAge int    `yaml:"critical_age"`
		FrozenTime  int    `yaml:"frozen_time"`
	} `yaml:"template"`
	States      []StateDef          `yaml:"states"`
	Transitions []TransitionDef     `yaml:"transitions"`
	Permissions map[string]GrantDef `yaml:"permissions"`
}

// StateDef declares one state and its fields
type StateDef struct {
	Name              string     `yaml:"name"`
	Type              string     `yaml:"type"`
	Responsible       string     `yaml:"responsible"`
	ResponsibleGroups []string   `yaml:"responsible_groups"`
	Fields            []FieldDef `yaml:"fields"`
}

// FieldDef declares one field of a state, in display order
type FieldDef struct {
	Name      string      `yaml:"name"`
	Type      string      `yaml:"type"`
	Required  bool        `yaml:"required"`
	MaxLength int         `yaml:"max_length"`
	Min       *int64      `yaml:"min"`
	Max       *int64      `yaml:"max"`
	Default   string      `yaml:"default"`
	Options   []OptionDef `yaml:"options"`
}

// OptionDef declares one administered option of a list field
type OptionDef struct {
	Key   int64  `yaml:"key"`
	Label string `yaml:"label"`
}

// TransitionDef declares one directed edge with its grants
type TransitionDef struct {
	From   string   `yaml:"from"`
	To     string   `yaml:"to"`
	Roles  []string `yaml:"roles"`
	Groups []string `yaml:"groups"`
}

// GrantDef declares role and group grants for one permission
type GrantDef struct {
	Roles  []string `yaml:"roles"`
	Groups []string `yaml:"groups"`
}

// LoadFile parses and validates a workflow definition from a YAML file
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path supplied by operator
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Load(data)
}

// Load parses and validates a workflow definition from YAML bytes
func Load(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural rules of a definition: exactly one
// initial state, unique state names, known types and policies, and
// transitions whose endpoints exist.
func (d *Definition) Validate() error {
	if d.Template.Name == "" {
		return fmt.Errorf("workflow: template name is required")
	}
	if d.Template.Prefix == "" {
		return fmt.Errorf("workflow: template prefix is required")
	}
	if len(d.States) == 0 {
		return fmt.Errorf("workflow: at least one state is required")
	}

	names := make(map[string]bool, len(d.States))
	initials := 0
	for _, s := range d.States {
		if s.Name == "" {
			return fmt.Errorf("workflow: state name is required")
		}
		if names[s.Name] {
			return fmt.Errorf("workflow: duplicate state name %q", s.Name)
		}
		names[s.Name] = true
		if !types.StateType(s.Type).IsValid() {
			return fmt.Errorf("workflow: state %q has invalid type %q", s.Name, s.Type)
		}
		if types.StateType(s.Type) == types.StateInitial {
			initials++
		}
		policy := s.Responsible
		if policy == "" {
			policy = string(types.ResponsibleNone)
		}
		if !types.ResponsiblePolicy(policy).IsValid() {
			return fmt.Errorf("workflow: state %q has invalid responsible policy %q", s.Name, s.Responsible)
		}
		fieldNames := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			if f.Name == "" {
				return fmt.Errorf("workflow: state %q has a field without a name", s.Name)
			}
			if fieldNames[f.Name] {
				return fmt.Errorf("workflow: state %q has duplicate field %q", s.Name, f.Name)
			}
			fieldNames[f.Name] = true
			if !types.FieldType(f.Type).IsValid() {
				return fmt.Errorf("workflow: field %q has invalid type %q", f.Name, f.Type)
			}
			if types.FieldType(f.Type) == types.FieldList && len(f.Options) == 0 {
				return fmt.Errorf("workflow: list field %q has no options", f.Name)
			}
			keys := make(map[int64]bool, len(f.Options))
			for _, o := range f.Options {
				if keys[o.Key] {
					return fmt.Errorf("workflow: list field %q has duplicate option key %d", f.Name, o.Key)
				}
				keys[o.Key] = true
			}
		}
	}
	if initials != 1 {
		return fmt.Errorf("workflow: exactly one initial state is required (got %d)", initials)
	}

	for _, t := range d.Transitions {
		if !names[t.From] {
			return fmt.Errorf("workflow: transition from unknown state %q", t.From)
		}
		if !names[t.To] {
			return fmt.Errorf("workflow: transition to unknown state %q", t.To)
		}
		if t.From == t.To {
			return fmt.Errorf("workflow: transition from %q to itself", t.From)
		}
		for _, r := range t.Roles {
			if !types.Role(r).IsValid() {
				return fmt.Errorf("workflow: transition %s->%s has invalid role %q", t.From, t.To, r)
			}
		}
	}

	for name, g := range d.Permissions {
		if !types.Permission(name).IsValid() {
			return fmt.Errorf("workflow: unknown permission %q", name)
		}
		for _, r := range g.Roles {
			if !types.Role(r).IsValid() {
				return fmt.Errorf("workflow: permission %q has invalid role %q", name, r)
			}
		}
	}

	return nil
}

// Install persists the definition as a new template of the project. Group
// names are resolved against the project's groups; referencing an unknown
// group is an error. Returns the created template.
func Install(ctx context.Context, tx storage.Transaction, projectID int64, def *Definition) (*types.Template, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	groupID := func(name string) (int64, error) {
		g, err := tx.GetGroupByName(ctx, projectID, name)
		if err != nil {
			return 0, fmt.Errorf("workflow: unknown group %q: %w", name, err)
		}
		return g.ID, nil
	}

	tmpl := &types.Template{
		ProjectID:   projectID,
		Name:        def.Template.Name,
		Prefix:      def.Template.Prefix,
		CriticalAge: def.Template.CriticalAge,
		FrozenTime:  def.Template.FrozenTime,
	}
	if err := tx.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	stateIDs := make(map[string]int64, len(def.States))
	var initialID int64
	for _, sd := range def.States {
		policy := types.ResponsiblePolicy(sd.Responsible)
		if sd.Responsible == "" {
			policy = types.ResponsibleNone
		}
		state := &types.State{
			TemplateID:  tmpl.ID,
			Name:        sd.Name,
			Type:        types.StateType(sd.Type),
			Responsible: policy,
		}
		for _, gn := range sd.ResponsibleGroups {
			id, err := groupID(gn)
			if err != nil {
				return nil, err
			}
			state.ResponsibleGroups = append(state.ResponsibleGroups, id)
		}
		if err := tx.CreateState(ctx, state); err != nil {
			return nil, err
		}
		stateIDs[sd.Name] = state.ID
		if state.Type == types.StateInitial {
			initialID = state.ID
		}

		for pos, fd := range sd.Fields {
			field := &types.Field{
				StateID:   state.ID,
				Name:      fd.Name,
				Type:      types.FieldType(fd.Type),
				Required:  fd.Required,
				Position:  pos,
				MaxLength: fd.MaxLength,
				MinValue:  fd.Min,
				MaxValue:  fd.Max,
				Default:   fd.Default,
			}
			if err := tx.CreateField(ctx, field); err != nil {
				return nil, err
			}
			for _, od := range fd.Options {
				item := &types.ListItem{FieldID: field.ID, Key: od.Key, Label: od.Label}
				if err := tx.CreateListItem(ctx, item); err != nil {
					return nil, err
				}
			}
		}
	}

	tmpl.InitialState = initialID
	if err := tx.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	for _, td := range def.Transitions {
		tr := &types.Transition{
			FromState: stateIDs[td.From],
			ToState:   stateIDs[td.To],
		}
		for _, r := range td.Roles {
			tr.Roles = append(tr.Roles, types.Role(r))
		}
		for _, gn := range td.Groups {
			id, err := groupID(gn)
			if err != nil {
				return nil, err
			}
			tr.Groups = append(tr.Groups, id)
		}
		if err := tx.CreateTransition(ctx, tr); err != nil {
			return nil, err
		}
	}

	for name, gd := range def.Permissions {
		grant := &types.Grant{
			TemplateID: tmpl.ID,
			Permission: types.Permission(name),
		}
		for _, r := range gd.Roles {
			grant.Roles = append(grant.Roles, types.Role(r))
		}
		for _, gn := range gd.Groups {
			id, err := groupID(gn)
			if err != nil {
				return nil, err
			}
			grant.Groups = append(grant.Groups, id)
		}
		if err := tx.SetGrant(ctx, grant); err != nil {
			return nil, err
		}
	}

	return tmpl, nil
}
