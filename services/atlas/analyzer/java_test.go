// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJavaAnalyzer_ClassExtraction(t *testing.T) {
	source := `package com.example.zoo;

import java.util.ArrayList;

/**
 * A domestic animal.
 */
public class Dog extends Animal implements Walker {
    private Collar collar;

    public String bark() {
        return "woof";
    }
}

abstract class Animal {
}

interface Walker {
}
`
	a := NewJavaAnalyzer()
	comps, edges, err := a.Analyze(context.Background(), []byte(source), "/repo/src/Dog.java", "/repo")
	require.NoError(t, err)

	dog := findComponent(t, comps, "src.Dog.Dog")
	assert.Equal(t, KindClass, dog.Kind)
	assert.Equal(t, "class Dog", dog.DisplayName)
	assert.True(t, dog.HasDoc)
	assert.Contains(t, dog.Doc, "domestic animal")
	require.NotNil(t, dog.Attributes)
	assert.Contains(t, dog.Attributes.BaseClasses, "extends Animal")
	assert.Contains(t, dog.Attributes.BaseClasses, "implements Walker")

	animal := findComponent(t, comps, "src.Dog.Animal")
	assert.Equal(t, KindAbstractClass, animal.Kind)

	walker := findComponent(t, comps, "src.Dog.Walker")
	assert.Equal(t, KindInterface, walker.Kind)

	// Same-file extends and implements resolve to component ids.
	assert.True(t, findEdge(t, edges, "src.Dog.Dog", "src.Dog.Animal").Resolved)
	assert.True(t, findEdge(t, edges, "src.Dog.Dog", "src.Dog.Walker").Resolved)

	// Unknown field type stays a bare unresolved name.
	collar := findEdge(t, edges, "src.Dog.Dog", "Collar")
	assert.False(t, collar.Resolved)
}

func TestJavaAnalyzer_MethodComponents(t *testing.T) {
	source := `package com.example;

public class Service {
    /** Runs the service. */
    public int run(String input) {
        return 0;
    }
}
`
	a := NewJavaAnalyzer()
	comps, _, err := a.Analyze(context.Background(), []byte(source), "/repo/Service.java", "/repo")
	require.NoError(t, err)

	m := findComponent(t, comps, "Service.Service.run")
	assert.Equal(t, KindMethod, m.Kind)
	assert.Equal(t, "Service.run", m.Name)
	assert.Equal(t, "int run(String)", m.DisplayName)
	assert.True(t, m.HasDoc)
	require.NotNil(t, m.Attributes)
	assert.Equal(t, []string{"String"}, m.Attributes.Parameters)
	assert.Equal(t, "int", m.Attributes.ReturnType)
}

func TestJavaAnalyzer_EnumAndRecord(t *testing.T) {
	source := `package com.example;

public enum Color {
    RED, GREEN
}

record Point(int x, int y) {
}
`
	a := NewJavaAnalyzer()
	comps, _, err := a.Analyze(context.Background(), []byte(source), "/repo/Color.java", "/repo")
	require.NoError(t, err)

	assert.Equal(t, KindEnum, findComponent(t, comps, "Color.Color").Kind)
	assert.Equal(t, KindRecord, findComponent(t, comps, "Color.Point").Kind)
}

func TestJavaAnalyzer_MethodInvocationViaLocalVariable(t *testing.T) {
	source := `package com.example;

public class Caller {
    public void go() {
        Engine engine = new Engine();
        engine.start();
    }
}

class Engine {
    public void start() {
    }
}
`
	a := NewJavaAnalyzer()
	_, edges, err := a.Analyze(context.Background(), []byte(source), "/repo/Caller.java", "/repo")
	require.NoError(t, err)

	// Object creation attributes to the enclosing class.
	assert.True(t, hasEdge(edges, "Caller.Caller", "Caller.Engine"))

	// Invocation through the local variable attributes to the method.
	assert.True(t, hasEdge(edges, "Caller.Caller.go", "Caller.Engine"))
}

func TestJavaAnalyzer_ImportedTypeResolution(t *testing.T) {
	source := `package com.example;

import com.vendor.http.Client;

public class Fetcher {
    private Client client;
}
`
	a := NewJavaAnalyzer()
	_, edges, err := a.Analyze(context.Background(), []byte(source), "/repo/Fetcher.java", "/repo")
	require.NoError(t, err)

	e := findEdge(t, edges, "Fetcher.Fetcher", "com.vendor.http.Client")
	assert.False(t, e.Resolved)
}

func TestJavaAnalyzer_BuiltinTypesFiltered(t *testing.T) {
	source := `package com.example;

public class Holder {
    private String name;
    private int count;
}
`
	a := NewJavaAnalyzer()
	_, edges, err := a.Analyze(context.Background(), []byte(source), "/repo/Holder.java", "/repo")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestJavaAnalyzer_Annotations(t *testing.T) {
	source := `package com.example;

@Deprecated
public class Legacy {
}
`
	a := NewJavaAnalyzer()
	comps, _, err := a.Analyze(context.Background(), []byte(source), "/repo/Legacy.java", "/repo")
	require.NoError(t, err)

	c := findComponent(t, comps, "Legacy.Legacy")
	require.NotNil(t, c.Attributes)
	assert.Equal(t, []string{"@Deprecated"}, c.Attributes.Decorators)
	assert.Equal(t, "@Deprecated class Legacy", c.DisplayName)
}

func TestJavaAnalyzer_FileTooLarge(t *testing.T) {
	a := NewJavaAnalyzer(WithJavaMaxFileSize(8))
	_, _, err := a.Analyze(context.Background(), []byte("public class X {}"), "/repo/X.java", "/repo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
}
