package generator

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func classNamed(data *TemplateData, name string) TemplateClass {
	for _, class := range data.Classes {
		if class.Name == name {
			return class
		}
	}
	Fail("no class " + name)
	return TemplateClass{}
}

func methodNamed(class TemplateClass, name string) TemplateMethod {
	for _, m := range class.Methods {
		if m.Name == name {
			return m
		}
	}
	Fail("no method " + name + " in " + class.Name)
	return TemplateMethod{}
}

var _ = Describe("Generator", func() {
	var data *TemplateData

	BeforeEach(func() {
		dir, err := filepath.Abs("testdata/shapes")
		Expect(err).To(Not(HaveOccurred()))
		data, err = Load(dir, "", nil)
		Expect(err).To(Not(HaveOccurred()))
	})

	Context("when loading a package", func() {
		It("finds the annotated classes", func() {
			Expect(data.Pkg).To(Equal("shapes"))
			Expect(data.Classes).To(HaveLen(2))
			Expect(data.Classes[0].Name).To(Equal("Point"))
			Expect(data.Classes[1].Name).To(Equal("Tag"))
			Expect(data.Classes[1].GoType).To(Equal("label"))
			Expect(data.Classes[1].GoName).To(Equal("Label"))
			Expect(data.Classes[1].VarName).To(Equal("label"))
		})

		It("only copies structs that allow it", func() {
			Expect(classNamed(data, "Point").Copyable).To(BeTrue())
			Expect(classNamed(data, "Tag").Copyable).To(BeFalse())
		})

		It("collects constants", func() {
			Expect(classNamed(data, "Point").Constants).To(ConsistOf(
				TemplateConstant{Name: "ORIGIN_X", Value: "dispatch.Int(0)"},
				TemplateConstant{Name: "UNIT", Value: "dispatch.Float(1.5)"},
			))
		})

		It("exposes value receivers as const methods", func() {
			m := methodNamed(classNamed(data, "Point"), "x")
			Expect(m.Builder).To(Equal(`dispatch.NewMethod("x")`))
			Expect(m.Modifiers).To(Equal([]string{
				"Const()",
				`Doc("GetX returns the x coordinate.")`,
				"Returns(dispatch.IntType)",
			}))
			Expect(m.Call).To(Equal("self.(*Point).GetX()"))
			Expect(m.HasResult).To(BeTrue())
			Expect(m.HasError).To(BeFalse())
		})

		It("converts arguments to the declared Go types", func() {
			m := methodNamed(classNamed(data, "Point"), "set_x")
			Expect(m.Modifiers).To(Equal([]string{`Setter("x")`, `Param("x", dispatch.IntType)`}))
			Expect(m.Call).To(Equal("self.(*Point).SetX(int(args[0].(int64)))"))
			Expect(m.HasResult).To(BeFalse())
		})

		It("passes the context through", func() {
			m := methodNamed(classNamed(data, "Point"), "move")
			Expect(m.Modifiers).To(Equal([]string{`Param("dx", dispatch.IntType)`, `Param("dy", dispatch.IntType)`}))
			Expect(m.Call).To(Equal("self.(*Point).Move(ctx, args[0].(int64), args[1].(int64))"))
			Expect(m.HasError).To(BeTrue())
		})

		It("wraps iterators", func() {
			m := methodNamed(classNamed(data, "Point"), "coords")
			Expect(m.Modifiers).To(ContainElement("Returns(dispatch.IteratorOf(dispatch.IntType))"))
			Expect(m.ResultExpr).To(Equal("anySeq(ret)"))
		})

		It("declares objects as borrowed unless owned", func() {
			add := methodNamed(classNamed(data, "Point"), "add")
			Expect(add.Modifiers).To(Equal([]string{`Param("other", dispatch.ObjectOf(pointBuilder.Class()))`}))
			Expect(add.Call).To(Equal("self.(*Point).Add(args[0].(*Point))"))

			mirror := methodNamed(classNamed(data, "Point"), "mirror")
			Expect(mirror.Modifiers).To(ContainElement("Returns(dispatch.NewObjectOf(pointBuilder.Class()))"))
		})

		It("declares signals", func() {
			m := methodNamed(classNamed(data, "Point"), "moved")
			Expect(m.Signal).To(BeTrue())
			Expect(m.Builder).To(HavePrefix(`dispatch.NewSignal("moved", `))
			Expect(m.Builder).To(ContainSubstring("return self.(*Point).OnMoved(emit), nil"))
			Expect(m.Modifiers).To(Equal([]string{`Param("dx", dispatch.IntType)`, `Param("dy", dispatch.IntType)`}))
		})

		It("declares predicates", func() {
			m := methodNamed(classNamed(data, "Point"), "at_origin")
			Expect(m.Modifiers).To(ContainElement("Predicate()"))
		})

		It("declares constructors with defaults", func() {
			m := methodNamed(classNamed(data, "Point"), "new")
			Expect(m.Builder).To(Equal(`dispatch.NewConstructor("new", pointBuilder.Class())`))
			Expect(m.Modifiers).To(Equal([]string{
				`Doc("NewPoint creates a point.")`,
				`Param("x", dispatch.IntType)`,
				`ParamDefault("y", dispatch.IntType, dispatch.Int(0))`,
			}))
			Expect(m.Call).To(Equal("NewPoint(int(args[0].(int64)), int(args[1].(int64)))"))
			Expect(m.ResultExpr).To(Equal("ret"))
		})

		It("declares static functions", func() {
			sum := methodNamed(classNamed(data, "Point"), "sum")
			Expect(sum.Modifiers).To(Equal([]string{
				"Static()",
				`Param("values", dispatch.SeqOf(dispatch.IntType))`,
				"Returns(dispatch.IntType)",
			}))
			Expect(sum.Call).To(Equal("Sum(sliceOf(args[0], func(v any) int { return int(v.(int64)) }))"))

			parse := methodNamed(classNamed(data, "Point"), "parse")
			Expect(parse.HasResult).To(BeTrue())
			Expect(parse.HasError).To(BeTrue())
		})

		It("skips ignored and unexported methods", func() {
			var names []string
			for _, m := range classNamed(data, "Point").Methods {
				names = append(names, m.Name)
			}
			Expect(names).To(Not(ContainElement("events")))
			Expect(names).To(Not(ContainElement("unexported")))
		})

		It("declares methods of non-struct types", func() {
			m := methodNamed(classNamed(data, "Tag"), "text")
			Expect(m.Call).To(Equal("self.(*label).Text()"))
		})

		It("rejects unsupported types", func() {
			dir, err := filepath.Abs("testdata/broken")
			Expect(err).To(Not(HaveOccurred()))
			_, err = Load(dir, "", nil)
			Expect(err).To(MatchError(ContainSubstring("Pipe.Channel: result: unsupported type chan int")))
		})
	})

	Context("when rendering", func() {
		It("produces valid Go source", func() {
			src, err := Render(data, "dispatch_gen.go")
			Expect(err).To(Not(HaveOccurred()))

			_, err = parser.ParseFile(token.NewFileSet(), "dispatch_gen.go", src, parser.AllErrors)
			Expect(err).To(Not(HaveOccurred()))

			Expect(string(src)).To(ContainSubstring("// Code generated by wazero-dispatch/generator. DO NOT EDIT."))
			Expect(string(src)).To(ContainSubstring(`pointBuilder := dispatch.NewClass("Point")`))
			Expect(string(src)).To(ContainSubstring(`pointBuilder.Constant("ORIGIN_X", dispatch.Int(0))`))
			Expect(string(src)).To(ContainSubstring("*dst.(*Point) = *src.(*Point)"))
			Expect(string(src)).To(Not(ContainSubstring("*dst.(*label)")))
			Expect(string(src)).To(ContainSubstring("func RegisterClasses(engine dispatch.Engine) error"))
			Expect(string(src)).To(ContainSubstring(`dispatch.NewSignal("moved"`))
		})

		It("writes the output next to the package", func() {
			dir := GinkgoT().TempDir()
			for _, name := range []string{"go.mod", "shapes.go"} {
				b, err := os.ReadFile(filepath.Join("testdata/shapes", name))
				Expect(err).To(Not(HaveOccurred()))
				Expect(os.WriteFile(filepath.Join(dir, name), b, 0o644)).To(Succeed())
			}

			Expect(Generate(dir, "", "dispatch_gen.go", nil)).To(Succeed())
			Expect(filepath.Join(dir, "dispatch_gen.go")).To(BeAnExistingFile())
		})
	})

	DescribeTable("snake casing names",
		func(in, out string) {
			Expect(snakeCase(in)).To(Equal(out))
		},
		Entry("single word", "Move", "move"),
		Entry("two words", "SetX", "set_x"),
		Entry("acronym prefix", "HTTPServer", "http_server"),
		Entry("acronym", "ID", "id"),
		Entry("digits", "Point3D", "point3_d"),
		Entry("trailing acronym", "ParseURL", "parse_url"),
	)

	DescribeTable("parsing defaults",
		func(in, out string) {
			v, err := defaultValue(in)
			Expect(err).To(Not(HaveOccurred()))
			Expect(v).To(Equal(out))
		},
		Entry("int", "3", "dispatch.Int(3)"),
		Entry("float", "1.5", "dispatch.Float(1.5)"),
		Entry("bool", "true", "dispatch.Bool(true)"),
		Entry("string", `"hi"`, `dispatch.Str("hi")`),
	)
})
