package parser_test

import (
	"fmt"

	"github.com/chicogong/vidioai/pkg/parser"
)

func ExampleParse() {
	intent := parser.Parse("corte entre 7:50 e 9:00")
	fmt.Println(intent.Kind, intent.StartSeconds, intent.EndSeconds)
	fmt.Println(intent.Descriptor())
	// Output:
	// cut_video 470 540
	// cut+470+540
}

func ExampleParser_ParseRule() {
	p := parser.New()
	intent, rule := p.ParseRule("adicione música lo-fi")
	fmt.Println(intent.Kind, intent.AudioCategory, rule)
	// Output: add_audio lofi audio
}
