// Package sam is a library for representing coordinate-sorted SAM/BAM
// alignments in a form that is convenient to edit, and for streaming
// them from and to .sam/.bam files.
//
// Parsing and formatting of the file formats, as well as BAI index
// lookups, are delegated to the biogo hts packages. This package
// converts their records into Alignment values with mutable CIGAR,
// sequence and quality slices, and back again on output.
//
// An InputFile implements the pargo pipeline.Source interface, so that
// alignments can be fed in batches into a pargo pipeline. RunPipeline
// runs a strictly ordered pipeline stage over an input file, which is
// what stateful, position-dependent processing requires. Check the
// documentation at https://godoc.org/github.com/ExaScience/pargo/pipeline
// for details of pargo pipelines if necessary.
package sam
