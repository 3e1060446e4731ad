package main

import (
	"io"
	"os"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// TemplateCmd groups named Zellij layout management (spec §3 Template
// entity, internal/template).
type TemplateCmd struct {
	Save   TemplateSaveCmd   `cmd:"" help:"Save a Zellij layout as a named template."`
	Show   TemplateShowCmd   `cmd:"" help:"Print a template's layout."`
	List   TemplateListCmd   `cmd:"" help:"List templates."`
	Delete TemplateDeleteCmd `cmd:"" help:"Delete a template."`
}

type TemplateSaveCmd struct {
	Name        string `arg:"" help:"Template name."`
	File        string `arg:"" help:"Path to a KDL layout file (- for stdin)."`
	Description string `help:"Short description."`
}

func (c *TemplateSaveCmd) Run(app *AppContext) error {
	var layout []byte
	var err error
	if c.File == "-" {
		layout, err = io.ReadAll(os.Stdin)
	} else {
		layout, err = os.ReadFile(c.File)
	}
	if err != nil {
		return zerr.Wrap(zerr.IO, "cli.template_save", "failed to read layout", err)
	}
	meta, err := app.Templates.Save(c.Name, string(layout), c.Description)
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("template", "saved "+c.Name, meta))
}

type TemplateShowCmd struct {
	Name string `arg:""`
}

func (c *TemplateShowCmd) Run(app *AppContext) error {
	tpl, err := app.Templates.Get(c.Name)
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("template", tpl.Metadata.Name, map[string]any{"layout": tpl.Layout, "metadata": tpl.Metadata}))
}

type TemplateListCmd struct{}

func (c *TemplateListCmd) Run(app *AppContext) error {
	list, err := app.Templates.List()
	if err != nil {
		return err
	}
	for _, m := range list {
		if err := app.Sink.Emit(event.Summary("template", m.Name, m)); err != nil {
			return err
		}
	}
	return app.Sink.Emit(event.Summary("count", "template list complete", len(list)))
}

type TemplateDeleteCmd struct {
	Name string `arg:""`
}

func (c *TemplateDeleteCmd) Run(app *AppContext) error {
	if err := app.Templates.Delete(c.Name); err != nil {
		return err
	}
	return app.Sink.Emit(event.Result("template_delete", event.OutcomeSuccess, "deleted "+c.Name, nil))
}
