// Package language defines the pipeline's output languages and maps
// foreign codes and names onto them.
package language
