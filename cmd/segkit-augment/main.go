// segkit-augment pre-generates augmented epochs of a segmentation dataset.
//
// It loads paired image and mask directories, runs the augmentation pipeline
// described by a YAML config over the requested number of epochs and writes
// the augmented pairs to a flat binary file that datasets.NewPreGenerated
// streams back during training.
//
// Example:
//
//	segkit-augment -images data/images -masks data/masks \
//	    -config pipeline.yaml -size 128x128 -epochs 40 -output train.bin
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/segkit/segkit/datasets"
)

var (
	flagImages = flag.String("images", "", "Directory with the input images.")
	flagMasks  = flag.String("masks", "", "Directory with the segmentation masks, "+
		"matched to -images by lexical file order. Mask pixels encode the class index in their red channel.")
	flagConfig = flag.String("config", "", "YAML pipeline config with the augmentation stages.")
	flagOutput = flag.String("output", "", "Output file for the pre-generated pairs.")
	flagSize   = flag.String("size", "128x128", "Target size as <height>x<width>. "+
		"Images are resized preserving aspect ratio and zero padded.")
	flagEpochs  = flag.Int("epochs", 1, "Number of augmented epochs to generate.")
	flagSeed    = flag.Int64("seed", 42, "Seed of the augmentation random number generator.")
	flagShuffle = flag.Bool("shuffle", true, "Shuffle the example order of every epoch.")
	flagQuiet   = flag.Bool("quiet", false, "Disable the progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	for _, required := range []struct{ name, value string }{
		{"images", *flagImages}, {"masks", *flagMasks}, {"config", *flagConfig}, {"output", *flagOutput},
	} {
		if required.value == "" {
			klog.Errorf("Missing required flag -%s. See 'segkit-augment -help'.", required.name)
			os.Exit(1)
		}
	}
	var height, width int
	if _, err := fmt.Sscanf(*flagSize, "%dx%d", &height, &width); err != nil || height < 1 || width < 1 {
		klog.Errorf("Invalid -size %q, want <height>x<width>.", *flagSize)
		os.Exit(1)
	}

	cfg := must.M1(loadConfig(*flagConfig))
	pipeline := must.M1(buildPipeline(cfg))
	images, masks := must.M2(datasets.LoadSegmentationDirs(*flagImages, *flagMasks, height, width))

	rng := rand.New(rand.NewSource(*flagSeed))
	ds := datasets.New("segkit-augment", images, masks, 1, rng).WithPipeline(pipeline)
	if *flagShuffle {
		ds.WithShuffle()
	}

	out := must.M1(os.Create(*flagOutput))
	must.M(ds.Save(*flagEpochs, !*flagQuiet, out))
	must.M(out.Close())

	info := must.M1(os.Stat(*flagOutput))
	fmt.Printf("Wrote %d pairs (%d epochs x %d examples) to %s: %s\n",
		*flagEpochs*ds.NumExamples(), *flagEpochs, ds.NumExamples(),
		*flagOutput, humanize.Bytes(uint64(info.Size())))
}
