package pipeline

import (
	"sort"

	"assetweaver/internal/config"
	"assetweaver/internal/state"
)

// Task names that are not chain names.
const (
	TaskDefault = "default"
	TaskBuild   = "build"
)

// Task is a named composition of chains.
type Task struct {
	Name        string
	Description string
	Step        Step

	// Mode is ExecutionModeClean when the task bypasses the cache.
	Mode state.ExecutionMode
}

// assets is the parallel part of every full build. Icons run before styles
// because the style chain compiles the fragment the icon chain writes.
func assets(cfg *config.Config) Step {
	steps := []Step{
		Series(Run(ChainIcons), Run(ChainStyles)),
		Run(ChainMarkup),
		Run(ChainScripts),
		Run(ChainImages),
	}
	if cfg.Fonts.Enabled {
		steps = append(steps, Run(ChainFonts))
	}
	return Parallel(steps...)
}

// Tasks returns the named tasks of the configuration: default, build, and
// one task per chain.
func Tasks(cfg *config.Config) map[string]Task {
	def := assets(cfg)
	if cfg.Clean.Enabled {
		def = Series(Run(ChainClean), def)
	}

	tasks := map[string]Task{
		TaskDefault: {
			Name:        TaskDefault,
			Description: "build every asset class, replaying unchanged chains from cache",
			Step:        def,
			Mode:        state.ExecutionModeIncremental,
		},
		TaskBuild: {
			Name:        TaskBuild,
			Description: "clean the output root and rebuild everything without the cache",
			Step:        Series(Run(ChainClean), assets(cfg)),
			Mode:        state.ExecutionModeClean,
		},
	}

	single := map[string]string{
		ChainClean:   "delete the output root",
		ChainIcons:   "generate the icon font and its style fragment",
		ChainStyles:  "compile, prefix and minify the stylesheet",
		ChainScripts: "concatenate and minify the scripts",
		ChainMarkup:  "copy HTML pages",
		ChainImages:  "copy images",
		ChainLint:    "lint the stylesheets",
	}
	if cfg.Fonts.Enabled {
		single[ChainFonts] = "copy fonts"
	}
	for name, desc := range single {
		tasks[name] = Task{Name: name, Description: desc, Step: Run(name), Mode: state.ExecutionModeIncremental}
	}
	return tasks
}

// TaskNames returns the task names sorted, default first.
func TaskNames(tasks map[string]Task) []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		if name != TaskDefault {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := tasks[TaskDefault]; ok {
		names = append([]string{TaskDefault}, names...)
	}
	return names
}
