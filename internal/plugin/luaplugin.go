package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/snippetide/internal/plugin/lua"
)

// LuaLoaderName identifies LuaFactory in load errors.
const LuaLoaderName = "lua"

// LuaFactory loads plugins declared in Lua files.
type LuaFactory struct {
	// Timeout bounds running the file and each command function.
	// Zero uses the state default.
	Timeout time.Duration
}

// NewLuaFactory creates a LuaFactory.
func NewLuaFactory() *LuaFactory {
	return &LuaFactory{}
}

// Name implements Factory.
func (f *LuaFactory) Name() string {
	return LuaLoaderName
}

// Accepts implements Factory.
func (f *LuaFactory) Accepts(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".lua")
}

// Load implements Factory.
func (f *LuaFactory) Load(path string, hostVersion Version) (Plugin, error) {
	p, err := f.load(path, hostVersion)
	if err != nil {
		return nil, &UnableToLoadError{Path: path, Loader: f.Name(), Err: err}
	}
	return p, nil
}

func (f *LuaFactory) load(path string, hostVersion Version) (*luaPlugin, error) {
	if !f.Accepts(path) {
		return nil, ErrUnsupportedFile
	}

	var opts []plua.StateOption
	if f.Timeout > 0 {
		opts = append(opts, plua.WithExecutionTimeout(f.Timeout))
	}
	state := plua.NewState(opts...)

	p := &luaPlugin{path: path, state: state}
	var decl *lua.LTable
	state.RegisterFunc("plugin", func(L *lua.LState) int {
		if decl != nil {
			L.RaiseError("plugin declared twice")
		}
		decl = L.CheckTable(1)
		return 0
	})
	state.RegisterFunc("language", func(L *lua.LState) int {
		lang, err := newLuaLanguage(p, L.CheckTable(1))
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		p.languages = append(p.languages, lang)
		return 0
	})

	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, err
	}

	if err := p.declare(decl, hostVersion); err != nil {
		state.Close()
		return nil, err
	}
	return p, nil
}

// luaPlugin is a plugin backed by a live Lua state. The state stays open
// so command functions can be called later.
type luaPlugin struct {
	name      string
	version   Version
	path      string
	state     *plua.State
	languages []Language
}

func (p *luaPlugin) declare(decl *lua.LTable, hostVersion Version) error {
	if decl == nil {
		return ErrMissingDeclaration
	}

	name, ok := plua.TableString(decl, "name")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlugin)
	}
	p.name = name

	version := "0.0.0"
	if s, ok := plua.TableString(decl, "version"); ok {
		version = s
	}
	v, err := ParseVersion(version)
	if err != nil {
		return err
	}
	p.version = v

	if s, ok := plua.TableString(decl, "min_host_version"); ok {
		required, err := ParseVersion(s)
		if err != nil {
			return fmt.Errorf("min_host_version: %w", err)
		}
		if !hostVersion.AtLeast(required) {
			return fmt.Errorf("%w: needs %s, host is %s", ErrIncompatibleVersion, required, hostVersion)
		}
	}
	return nil
}

func (p *luaPlugin) Name() string          { return p.name }
func (p *luaPlugin) Version() Version      { return p.version }
func (p *luaPlugin) Path() string          { return p.path }
func (p *luaPlugin) Languages() []Language { return p.languages }

func (p *luaPlugin) Close() error {
	return p.state.Close()
}

// luaLanguage is a language declared with language{}.
type luaLanguage struct {
	plugin     *luaPlugin
	name       string
	extensions []string
	template   string
	command    string
	commandFn  *lua.LFunction
}

func newLuaLanguage(p *luaPlugin, t *lua.LTable) (*luaLanguage, error) {
	lang := &luaLanguage{plugin: p}

	name, ok := plua.TableString(t, "name")
	if !ok || strings.TrimSpace(name) == "" {
		return nil, errors.New("language: name is required")
	}
	lang.name = name

	exts, err := plua.TableStrings(t, "extensions")
	if err != nil {
		return nil, fmt.Errorf("language %s: %w", name, err)
	}
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return nil, fmt.Errorf("language %s: extension %q must start with a dot", name, ext)
		}
	}
	lang.extensions = exts

	lang.template, _ = plua.TableString(t, "template")

	if fn, ok := plua.TableFunc(t, "command"); ok {
		lang.commandFn = fn
	} else if cmd, ok := plua.TableString(t, "command"); ok && strings.TrimSpace(cmd) != "" {
		lang.command = cmd
	} else {
		return nil, fmt.Errorf("language %s: command must be a string or a function", name)
	}
	return lang, nil
}

func (l *luaLanguage) Name() string         { return l.name }
func (l *luaLanguage) Extensions() []string { return l.extensions }
func (l *luaLanguage) Template() string     { return l.template }

func (l *luaLanguage) Command(sourceFile string) (string, error) {
	if l.commandFn == nil {
		return l.command, nil
	}

	results, err := l.plugin.state.Call(l.commandFn, lua.LString(sourceFile))
	if err != nil {
		return "", fmt.Errorf("language %s: command: %w", l.name, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("language %s: command returned nothing", l.name)
	}
	cmd, ok := results[0].(lua.LString)
	if !ok || strings.TrimSpace(string(cmd)) == "" {
		return "", fmt.Errorf("language %s: command must return a non-empty string", l.name)
	}
	return string(cmd), nil
}
