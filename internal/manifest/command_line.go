package manifest

import "github.com/jeanlauliac/upd/internal/upath"

// CommandLine is a binary path, argument list and environment ready to
// be executed, along with the directory it must run in so its
// root-relative arguments resolve correctly.
type CommandLine struct {
	BinaryPath  string
	Args        []string
	Environment Environment
	WorkingPath string
}

// CommandLineParameters is the contextual data needed to specialize a
// CommandLineTemplate for one particular update.
type CommandLineParameters struct {
	DepfilePath string
	InputFiles  []string
	OutputFiles []string
}

// ReifyCommandLine expands a CommandLineTemplate's variable arguments
// against parameters, converting every input/output path to be
// relative to workingPath.
func ReifyCommandLine(base CommandLineTemplate, parameters CommandLineParameters, rootPath, workingPath string) CommandLine {
	result := CommandLine{BinaryPath: base.BinaryPath, Environment: base.Environment, WorkingPath: workingPath}
	for _, part := range base.Parts {
		result.Args = append(result.Args, part.LiteralArgs...)
		for _, v := range part.VariableArgs {
			switch v {
			case VarInputFiles:
				result.Args = appendRelativePaths(result.Args, parameters.InputFiles, rootPath, workingPath)
			case VarOutputFiles:
				result.Args = appendRelativePaths(result.Args, parameters.OutputFiles, rootPath, workingPath)
			case VarDepfile:
				result.Args = append(result.Args, parameters.DepfilePath)
			}
		}
	}
	return result
}

func appendRelativePaths(args []string, paths []string, rootPath, workingPath string) []string {
	for _, p := range paths {
		args = append(args, upath.GetRelative(workingPath, p, rootPath))
	}
	return args
}
